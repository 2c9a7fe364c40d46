package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// App mode & server
	Mode        string
	ServerAddr  string
	TLSCertFile string
	TLSKeyFile  string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Uploads
	ImagesDir       string
	ImagesURLPrefix string
	UploadMaxBytes  int64

	// Rate limiting
	RateLimitRPS   int
	RateLimitBurst int
	TrustedProxies []string // peers whose X-Forwarded-For is believed

	// Kafka
	KafkaBroker    string
	KafkaTopic     string
	KafkaGroupID   string
	KafkaPartition int
	KafkaReadTO    time.Duration
	KafkaWriteTO   time.Duration
	WorkerCount    int

	// Cassandra
	CassandraHost     string
	CassandraKeyspace string
	CassandraUsername string
	CassandraPassword string
	CassandraTimeout  time.Duration
	CassandraDC       string
	MigrationsPath    string
}

var ErrMissingJWTSecret = errors.New("JWT_SECRET must be set")

var cfg *Config

// Init loads the config using Viper and returns it.
func Init() (*Config, error) {
	v := viper.New()

	v.SetDefault("MODE", "server")
	v.SetDefault("SERVER_ADDR", ":8080")

	v.SetDefault("TOKEN_TTL", "24h")

	v.SetDefault("IMAGES_DIR", "images")
	v.SetDefault("IMAGES_URL_PREFIX", "/images/")
	v.SetDefault("UPLOAD_MAX_BYTES", 10<<20)

	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("TRUSTED_PROXIES", "")

	v.SetDefault("KAFKA_BROKER", "localhost:29092")
	v.SetDefault("KAFKA_TOPIC", "post-events")
	v.SetDefault("KAFKA_GROUP_ID", "image-cleanup")
	v.SetDefault("KAFKA_PARTITION", 0)
	v.SetDefault("KAFKA_READ_TIMEOUT", "10s")
	v.SetDefault("KAFKA_WRITE_TIMEOUT", "10s")
	v.SetDefault("WORKER_COUNT", 0)

	v.SetDefault("CASSANDRA_HOST", "localhost")
	v.SetDefault("CASSANDRA_KEYSPACE", "blogfeed")
	v.SetDefault("CASSANDRA_TIMEOUT", "10s")
	v.SetDefault("MIGRATIONS_PATH", "./migrations/cassandra")
	// Optional: TLS files, Cassandra username/password/DC can be empty

	// Load env variables
	v.AutomaticEnv()

	// Optional config file support
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	durations := &durationReader{v: v}
	c := &Config{
		Mode:              v.GetString("MODE"),
		ServerAddr:        v.GetString("SERVER_ADDR"),
		TLSCertFile:       v.GetString("TLS_CERT_FILE"),
		TLSKeyFile:        v.GetString("TLS_KEY_FILE"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		TokenTTL:          durations.get("TOKEN_TTL"),
		ImagesDir:         v.GetString("IMAGES_DIR"),
		ImagesURLPrefix:   v.GetString("IMAGES_URL_PREFIX"),
		UploadMaxBytes:    v.GetInt64("UPLOAD_MAX_BYTES"),
		RateLimitRPS:      v.GetInt("RATE_LIMIT_RPS"),
		RateLimitBurst:    v.GetInt("RATE_LIMIT_BURST"),
		TrustedProxies:    splitList(v.GetString("TRUSTED_PROXIES")),
		KafkaBroker:       v.GetString("KAFKA_BROKER"),
		KafkaTopic:        v.GetString("KAFKA_TOPIC"),
		KafkaGroupID:      v.GetString("KAFKA_GROUP_ID"),
		KafkaPartition:    v.GetInt("KAFKA_PARTITION"),
		KafkaReadTO:       durations.get("KAFKA_READ_TIMEOUT"),
		KafkaWriteTO:      durations.get("KAFKA_WRITE_TIMEOUT"),
		WorkerCount:       v.GetInt("WORKER_COUNT"),
		CassandraHost:     v.GetString("CASSANDRA_HOST"),
		CassandraKeyspace: v.GetString("CASSANDRA_KEYSPACE"),
		CassandraUsername: v.GetString("CASSANDRA_USERNAME"),
		CassandraPassword: v.GetString("CASSANDRA_PASSWORD"),
		CassandraTimeout:  durations.get("CASSANDRA_TIMEOUT"),
		CassandraDC:       v.GetString("CASSANDRA_DC"),
		MigrationsPath:    v.GetString("MIGRATIONS_PATH"),
	}

	if err := errors.Join(durations.errs...); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	cfg = c
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.Mode != "server" && c.Mode != "worker" {
		return fmt.Errorf("unknown mode: %q", c.Mode)
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.UploadMaxBytes)
	}
	return nil
}

// durationReader parses duration keys, remembering every malformed one.
type durationReader struct {
	v    *viper.Viper
	errs []error
}

func (r *durationReader) get(key string) time.Duration {
	raw := r.v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return 0
	}
	if d <= 0 {
		r.errs = append(r.errs, fmt.Errorf("%s must be positive, got %s", key, d))
		return 0
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Get returns the loaded config instance
func Get() *Config {
	return cfg
}
