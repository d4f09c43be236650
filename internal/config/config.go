// Package config reads service configuration from command-line flags and
// environment variables. Environment values take precedence over flags.
package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-faster/errors"
)

const (
	DefaultAddr              = ":8080"
	DefaultMongoDatabase     = "teashop"
	DefaultStatusTopic       = "order.status"
	DefaultNotificationTopic = "order.notifications"
	DefaultKeepAlive         = 20 * time.Second
)

type Config struct {
	Addr   string `env:"ADDR"`
	Port   string `env:"PORT"`
	AppEnv string `env:"APP_ENV" envDefault:"development"`

	MongoURI      string `env:"MONGODB_URI"`
	MongoDatabase string `env:"MONGODB_DB" envDefault:"teashop"`
	PostgresURL   string `env:"POSTGRES_URL"`

	KafkaBrokers           []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaStatusTopic       string   `env:"KAFKA_STATUS_TOPIC" envDefault:"order.status"`
	KafkaNotificationTopic string   `env:"KAFKA_NOTIFICATION_TOPIC" envDefault:"order.notifications"`

	AdminKey    string   `env:"ADMIN_KEY"`
	JWTSecret   string   `env:"JWT_SECRET"`
	AdminEmails []string `env:"ADMIN_EMAILS" envSeparator:","`

	KeepAlive   time.Duration `env:"SSE_KEEPALIVE" envDefault:"20s"`
	CORSOrigins []string      `env:"CORS_ORIGINS" envSeparator:","`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	Sparrow SparrowConfig
	Twilio  TwilioConfig
}

type SparrowConfig struct {
	Token string `env:"SPARROW_TOKEN"`
	From  string `env:"SPARROW_FROM"`
	URL   string `env:"SPARROW_URL" envDefault:"https://api.sparrowsms.com/v2/sms/"`
}

type TwilioConfig struct {
	AccountSID string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	From       string `env:"TWILIO_FROM"`
	URL        string `env:"TWILIO_URL" envDefault:"https://api.twilio.com"`
}

// Production reports whether diagnostic detail must be kept out of responses.
func (c *Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Parse reads flags from the process command line and then overlays any
// environment values that are set.
func Parse() (*Config, error) {
	return ParseArgs(flag.CommandLine, nil)
}

// ParseArgs is Parse against an explicit flag set. A nil args slice parses
// the process arguments.
func ParseArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}

	envAddr := cfg.Addr
	envMongo := cfg.MongoURI
	envPostgres := cfg.PostgresURL
	envBrokers := cfg.KafkaBrokers

	var brokers string
	fs.StringVar(&cfg.Addr, "a", "", "address and port for HTTP server")
	fs.StringVar(&cfg.MongoURI, "m", "", "MongoDB connection URI")
	fs.StringVar(&cfg.PostgresURL, "d", "", "PostgreSQL connection URL")
	fs.StringVar(&brokers, "k", "", "comma-separated Kafka brokers")

	if args == nil {
		args = os.Args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "parse flags")
	}

	if brokers != "" {
		cfg.KafkaBrokers = splitList(brokers)
	}

	if envAddr != "" {
		cfg.Addr = envAddr
	}
	if envMongo != "" {
		cfg.MongoURI = envMongo
	}
	if envPostgres != "" {
		cfg.PostgresURL = envPostgres
	}
	if len(envBrokers) > 0 {
		cfg.KafkaBrokers = envBrokers
	}

	if cfg.Addr == "" {
		if cfg.Port != "" {
			cfg.Addr = ":" + cfg.Port
		} else {
			cfg.Addr = DefaultAddr
		}
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	cfg.KafkaBrokers = splitList(strings.Join(cfg.KafkaBrokers, ","))
	cfg.AdminEmails = splitList(strings.ToLower(strings.Join(cfg.AdminEmails, ",")))
	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
