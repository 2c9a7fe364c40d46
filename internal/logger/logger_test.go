package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestAnonymize(t *testing.T) {
	cases := map[string]string{
		"login attempt for almaz@example.com":         "login attempt for [REDACTED_EMAIL]",
		"Authorization: Bearer abc.def.ghi":           "Authorization: Bearer [REDACTED_TOKEN]",
		"token eyJhbGciOiJIUzI1NiJ9.e30.sig issued":   "token [REDACTED_TOKEN] issued",
		`{"password":"hunter2secret"}`:                `{password=[REDACTED]}`,
		"nothing sensitive here":                      "nothing sensitive here",
	}
	for in, want := range cases {
		if got := Anonymize(in); got != want {
			t.Fatalf("Anonymize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLogger_WritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Error("store", "query failed for nur@example.com", errors.New("timeout"))

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry.Level != ErrorLevel || entry.Module != "store" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if strings.Contains(entry.Message, "@") {
		t.Fatalf("email not redacted: %q", entry.Message)
	}
	if entry.Error != "timeout" {
		t.Fatalf("unexpected error field %q", entry.Error)
	}
}
