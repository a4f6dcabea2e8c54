// Package config loads solver parameters from YAML and service settings from
// the environment.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"mdvrp/internal/opt"
)

type Settings struct {
	Port         string  `env:"PORT" envDefault:"8080"`
	DatabaseURL  string  `env:"DATABASE_URL"`
	DBMigrate    bool    `env:"DB_MIGRATE" envDefault:"true"`
	RedisURL     string  `env:"REDIS_URL"`
	AMQPURL      string  `env:"AMQP_URL"`
	AMQPQueue    string  `env:"AMQP_QUEUE" envDefault:"mdvrp.runs"`
	AuthMode     string  `env:"AUTH_MODE" envDefault:"dev"`
	JWTSecret    string  `env:"JWT_SECRET"`
	RateRPS      float64 `env:"RATE_RPS" envDefault:"20"`
	RateBurst    int     `env:"RATE_BURST" envDefault:"40"`
	ProgressRPS  float64 `env:"PROGRESS_RPS" envDefault:"4"`
	DataDir      string  `env:"DATA_DIR" envDefault:"data"`
	SolutionsDir string  `env:"SOLUTIONS_DIR" envDefault:"solutions"`
	ParamsFile   string  `env:"PARAMS_FILE"`

	WebhookMaxAttempts int `env:"WEBHOOK_MAX_ATTEMPTS" envDefault:"10"`
	MaxConcurrentRuns  int `env:"MAX_CONCURRENT_RUNS" envDefault:"2"`
}

// LoadSettings reads the environment, returning the first error only.
func LoadSettings() (*Settings, error) {
	s := &Settings{}
	if err := env.Parse(s); err != nil {
		var agg env.AggregateError
		if errors.As(err, &agg) && len(agg.Errors) > 0 {
			return nil, agg.Errors[0]
		}
		return nil, err
	}
	if s.AuthMode == "hmac" && s.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required when AUTH_MODE=hmac")
	}
	if s.MaxConcurrentRuns < 1 {
		s.MaxConcurrentRuns = 1
	}
	return s, nil
}

// LoadParameters merges the YAML file at path over opt.DefaultParameters.
// An empty path yields the defaults.
func LoadParameters(path string) (opt.Parameters, error) {
	p := opt.DefaultParameters()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("load parameters: %w", err)
	}
	return ParseParameters(b, p)
}

// ParseParameters overlays YAML over base and validates the result.
func ParseParameters(b []byte, base opt.Parameters) (opt.Parameters, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&base); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("parse parameters: %w", err)
	}
	if err := base.Validate(); err != nil {
		return base, err
	}
	return base, nil
}

// OverlayJSON applies a JSON object over base, as sent by API clients or
// stored as the admin overlay. Unknown keys are rejected.
func OverlayJSON(base opt.Parameters, raw []byte) (opt.Parameters, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return base, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&base); err != nil {
		return base, fmt.Errorf("parse parameters: %w", err)
	}
	if err := base.Validate(); err != nil {
		return base, err
	}
	return base, nil
}
