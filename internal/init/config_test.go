package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestInit_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := Init(); !errors.Is(err, ErrMissingJWTSecret) {
		t.Fatalf("expected ErrMissingJWTSecret, got %v", err)
	}
}

func TestInit_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("IMAGES_DIR", "/tmp/blogfeed-images")

	c, err := Init()
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if c.Mode != "server" {
		t.Fatalf("expected default mode server, got %q", c.Mode)
	}
	if c.TokenTTL != 2*time.Hour {
		t.Fatalf("expected TOKEN_TTL override, got %s", c.TokenTTL)
	}
	if c.ImagesDir != "/tmp/blogfeed-images" {
		t.Fatalf("expected IMAGES_DIR override, got %q", c.ImagesDir)
	}
	if c.ImagesURLPrefix != "/images/" {
		t.Fatalf("unexpected images prefix %q", c.ImagesURLPrefix)
	}
	if Get() != c {
		t.Fatalf("expected Get to return the loaded config")
	}
}

func TestInit_RejectsUnknownMode(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("MODE", "batch")

	if _, err := Init(); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestInit_RejectsBadDurations(t *testing.T) {
	for key, value := range map[string]string{
		"TOKEN_TTL":           "forever",
		"KAFKA_READ_TIMEOUT":  "10",
		"KAFKA_WRITE_TIMEOUT": "-5s",
		"CASSANDRA_TIMEOUT":   "0s",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "test-secret")
			t.Setenv(key, value)

			_, err := Init()
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Fatalf("expected error naming %s, got %v", key, err)
			}
		})
	}
}

func TestInit_TrustedProxies(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("TRUSTED_PROXIES", " 10.0.0.0/8, ,192.0.2.1 ")

	c, err := Init()
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if len(c.TrustedProxies) != 2 || c.TrustedProxies[0] != "10.0.0.0/8" || c.TrustedProxies[1] != "192.0.2.1" {
		t.Fatalf("unexpected trusted proxies %q", c.TrustedProxies)
	}
}
