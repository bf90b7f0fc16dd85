// Package config loads the application configuration from the environment
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AppName names the per-user configuration directory
const AppName = "nightscout-tray"

var (
	// ErrNotConfigured is returned when NIGHTSCOUT_URL is missing
	ErrNotConfigured = errors.New("NIGHTSCOUT_URL not configured")
	// ErrNoCredentials is returned by CheckCredentials when neither a token nor a secret is set
	ErrNoCredentials = errors.New("neither NS_TOKEN nor an API secret configured")
)

// ConfigErrorType categorizes configuration loading failures
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrParsing indicates an environment value could not be parsed.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrValidation indicates the configuration failed validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrDotenv indicates a .env file exists but could not be read.
	ErrDotenv ConfigErrorType = "DOTENV_FAILED"
)

// ConfigError is returned by Load to aid debugging
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Flag is a boolean that also accepts yes/no and on/off
type Flag bool

// Decode implements envconfig.Decoder
func (f *Flag) Decode(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on", "y", "t":
		*f = true
	case "", "0", "false", "no", "off", "n", "f":
		*f = false
	default:
		return fmt.Errorf("invalid boolean %q", value)
	}
	return nil
}

// Config is the immutable application configuration. Load and Reload
// always return a fresh instance.
type Config struct {
	// Connection
	NightscoutURL       string  `envconfig:"NIGHTSCOUT_URL" validate:"required,url"`
	Token               string  `envconfig:"NS_TOKEN"`
	APISecret           string  `envconfig:"NS_API_SECRET"`
	LegacyAPISecret     string  `envconfig:"NIGHTSCOUT_API_SECRET"`
	ConnectTimeoutSecs  float64 `envconfig:"NS_TIMEOUT_CONNECT_SECONDS" default:"5" validate:"gt=0"`
	ReadTimeoutSecs     float64 `envconfig:"NS_TIMEOUT_READ_SECONDS" default:"30" validate:"gt=0"`
	Retries             int     `envconfig:"NS_RETRIES" default:"3" validate:"gte=0,lte=10"`
	RetryBackoffSeconds float64 `envconfig:"NS_RETRY_BACKOFF_SECONDS" default:"0.5" validate:"gte=0"`
	VerifySSL           Flag    `envconfig:"NS_VERIFY_SSL" default:"false"`

	// Reconciliation
	WindowMinutes      int           `envconfig:"WINDOW_MIN" default:"360" validate:"gt=0,lte=10080"`
	RefreshInterval    time.Duration `envconfig:"REFRESH_INTERVAL" default:"60s" validate:"gte=1s"`
	DIAMinutes         float64       `envconfig:"DIA_MINUTES" default:"300" validate:"gt=0"`
	IOBHalfLifeMinutes float64       `envconfig:"IOB_HALF_LIFE_MINUTES" default:"60" validate:"gt=0"`
	TZName             string        `envconfig:"TZ_NAME"`

	// Chart
	BGYMin *float64 `envconfig:"BG_YMIN"`
	BGYMax *float64 `envconfig:"BG_YMAX"`

	// Diagnostics
	DebugAge  Flag   `envconfig:"DEBUG_AGE"`
	DebugTime Flag   `envconfig:"DEBUG_TIME"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
	LogPretty Flag   `envconfig:"LOG_PRETTY" default:"true"`

	// Outputs
	StatusAddr     string `envconfig:"STATUS_ADDR"`
	StatusIconPath string `envconfig:"STATUS_ICON_PATH"`
	EnableAlerts   Flag   `envconfig:"ENABLE_ALERTS" default:"false"`
	AlertRepeatMin int    `envconfig:"ALERT_REPEAT_MINUTES" default:"30" validate:"gte=0"`

	// EnvFile is the .env file that was loaded, empty when none
	EnvFile string `ignored:"true"`

	location *time.Location
}

// Secret returns the API secret, preferring NS_API_SECRET
func (c *Config) Secret() string {
	if c.APISecret != "" {
		return c.APISecret
	}
	return c.LegacyAPISecret
}

// CheckCredentials reports ErrNoCredentials when no authentication is configured.
// Public Nightscout sites work without, so callers usually only warn.
func (c *Config) CheckCredentials() error {
	if c.Token == "" && c.Secret() == "" {
		return ErrNoCredentials
	}
	return nil
}

// Location is the time zone used for profile lookups and display
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// Window is how far back each refresh looks
func (c *Config) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// ConnectTimeout bounds establishing a connection
func (c *Config) ConnectTimeout() time.Duration {
	return seconds(c.ConnectTimeoutSecs)
}

// ReadTimeout bounds waiting for response headers
func (c *Config) ReadTimeout() time.Duration {
	return seconds(c.ReadTimeoutSecs)
}

// RetryBackoff is the wait before the first retry
func (c *Config) RetryBackoff() time.Duration {
	return seconds(c.RetryBackoffSeconds)
}

// DIA is the duration of insulin action
func (c *Config) DIA() time.Duration {
	return minutes(c.DIAMinutes)
}

// AlertRepeat is how often an out-of-range alert repeats, zero for once
func (c *Config) AlertRepeat() time.Duration {
	return time.Duration(c.AlertRepeatMin) * time.Minute
}

// IOBHalfLife is the half-life of the bolus decay
func (c *Config) IOBHalfLife() time.Duration {
	return minutes(c.IOBHalfLifeMinutes)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
