// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/reportbot/lib/ref"
	"github.com/bureau-foundation/reportbot/lib/secret"
)

// EnvironmentVariable names the config file when no --config flag is
// given.
const EnvironmentVariable = "REPORT_RELAY_CONFIG"

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the relay's configuration.
type Config struct {
	// Matrix configures the relay's account and notification room.
	Matrix MatrixConfig `yaml:"matrix"`

	// Database configures access to the Synapse database.
	Database DatabaseConfig `yaml:"database"`

	// Relay configures polling and the state file.
	Relay RelayConfig `yaml:"relay"`
}

// MatrixConfig configures the homeserver connection.
type MatrixConfig struct {
	// Homeserver is the client-server API base URL.
	// Default: http://localhost:8008
	Homeserver string `yaml:"homeserver"`

	// Account is the user to log in as, either a localpart or a full
	// user ID.
	// Default: @zazu:localhost
	Account string `yaml:"account"`

	// Password is the account password. Exactly one of Password and
	// PasswordFile must be set.
	// Default: ${REPORT_RELAY_PASSWORD}
	Password string `yaml:"password"`

	// PasswordFile holds the password; surrounding whitespace is
	// trimmed. "-" reads the first line of standard input.
	PasswordFile string `yaml:"password_file"`

	// RoomID is the notification room. Required.
	RoomID string `yaml:"room_id"`

	// DeviceName is the display name given to the device created by a
	// password login.
	// Default: Reporting Bot
	DeviceName string `yaml:"device_name"`

	// HTTPTimeout bounds each homeserver request.
	// Default: 30s
	HTTPTimeout string `yaml:"http_timeout"`

	// SendAttempts is the maximum number of attempts per request for
	// retryable failures.
	// Default: 5
	SendAttempts int `yaml:"send_attempts"`
}

// DatabaseConfig configures the Synapse database.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	// Default: postgres
	Driver string `yaml:"driver"`

	// Host, Port, Name, User, Password and SSLMode apply to postgres.
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`

	// Path is the database file for sqlite.
	Path string `yaml:"path"`

	// View optionally names a database view to read reports from
	// instead of Synapse's tables.
	View string `yaml:"view"`
}

// RelayConfig configures the polling loop.
type RelayConfig struct {
	// StateFile holds the cursor and cached session.
	// Default: state.json
	StateFile string `yaml:"state_file"`

	// PollInterval is the wait between cycles.
	// Default: 300s
	PollInterval string `yaml:"poll_interval"`

	// MalformedPolicy is "block" or "skip".
	// Default: block
	MalformedPolicy string `yaml:"malformed_policy"`
}

// Default returns the default configuration. The file is loaded over
// it, so a minimal file needs only matrix.room_id and the passwords.
func Default() *Config {
	return &Config{
		Matrix: MatrixConfig{
			Homeserver:   "http://localhost:8008",
			Account:      "@zazu:localhost",
			Password:     "${REPORT_RELAY_PASSWORD}",
			DeviceName:   "Reporting Bot",
			HTTPTimeout:  "30s",
			SendAttempts: 5,
		},
		Database: DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     "postgres",
			Port:     5432,
			Name:     "synapse",
			User:     "synapse",
			Password: "${SYNAPSE_DB_PASSWORD}",
			SSLMode:  "prefer",
		},
		Relay: RelayConfig{
			StateFile:       "state.json",
			PollInterval:    "300s",
			MalformedPolicy: "block",
		},
	}
}

// Load loads configuration from the file named by
// REPORT_RELAY_CONFIG. It fails if the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of the relay's YAML config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults and expands
// variables. It does not validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	// The file may hold literal passwords.
	defer secret.Zero(data)

	// Unknown keys are errors so a misspelled setting is not silently
	// replaced by its default. An empty file decodes to io.EOF.
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in every string
// field.
func (c *Config) expandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}
	for _, field := range []*string{
		&c.Matrix.Homeserver,
		&c.Matrix.Account,
		&c.Matrix.Password,
		&c.Matrix.PasswordFile,
		&c.Matrix.RoomID,
		&c.Matrix.DeviceName,
		&c.Matrix.HTTPTimeout,
		&c.Database.Driver,
		&c.Database.Host,
		&c.Database.Name,
		&c.Database.User,
		&c.Database.Password,
		&c.Database.SSLMode,
		&c.Database.Path,
		&c.Database.View,
		&c.Relay.StateFile,
		&c.Relay.PollInterval,
		&c.Relay.MalformedPolicy,
	} {
		*field = expandVars(*field, vars)
	}
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var sslModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if c.Matrix.Homeserver == "" {
		errs = append(errs, fmt.Errorf("matrix.homeserver is required"))
	} else if parsed, err := url.Parse(c.Matrix.Homeserver); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("matrix.homeserver %q must be an http or https URL", c.Matrix.Homeserver))
	}
	if c.Matrix.Account == "" {
		errs = append(errs, fmt.Errorf("matrix.account is required"))
	}
	switch {
	case c.Matrix.Password == "" && c.Matrix.PasswordFile == "":
		errs = append(errs, fmt.Errorf("one of matrix.password or matrix.password_file is required"))
	case c.Matrix.Password != "" && c.Matrix.PasswordFile != "":
		errs = append(errs, fmt.Errorf("matrix.password and matrix.password_file are mutually exclusive"))
	}
	if c.Matrix.RoomID == "" {
		errs = append(errs, fmt.Errorf("matrix.room_id is required"))
	} else if _, err := ref.ParseRoomID(c.Matrix.RoomID); err != nil {
		errs = append(errs, fmt.Errorf("matrix.room_id: %w", err))
	}
	if _, err := positiveDuration(c.Matrix.HTTPTimeout); err != nil {
		errs = append(errs, fmt.Errorf("matrix.http_timeout: %w", err))
	}
	if c.Matrix.SendAttempts < 1 {
		errs = append(errs, fmt.Errorf("matrix.send_attempts must be at least 1"))
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" {
			errs = append(errs, fmt.Errorf("database.host is required for postgres"))
		}
		if c.Database.Name == "" {
			errs = append(errs, fmt.Errorf("database.name is required for postgres"))
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Errorf("database.port %d out of range", c.Database.Port))
		}
		if !slices.Contains(sslModes, c.Database.SSLMode) {
			errs = append(errs, fmt.Errorf("database.sslmode must be one of: %v", sslModes))
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, fmt.Errorf("database.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver))
	}

	if c.Relay.StateFile == "" {
		errs = append(errs, fmt.Errorf("relay.state_file is required"))
	}
	if _, err := positiveDuration(c.Relay.PollInterval); err != nil {
		errs = append(errs, fmt.Errorf("relay.poll_interval: %w", err))
	}
	if policy := c.Relay.MalformedPolicy; policy != "block" && policy != "skip" {
		errs = append(errs, fmt.Errorf("relay.malformed_policy must be block or skip, got %q", policy))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func positiveDuration(value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if duration <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", value)
	}
	return duration, nil
}

// HTTPTimeout returns matrix.http_timeout. Call Validate first; an
// invalid value returns zero.
func (c *Config) HTTPTimeout() time.Duration {
	duration, _ := positiveDuration(c.Matrix.HTTPTimeout)
	return duration
}

// PollInterval returns relay.poll_interval. Call Validate first; an
// invalid value returns zero.
func (c *Config) PollInterval() time.Duration {
	duration, _ := positiveDuration(c.Relay.PollInterval)
	return duration
}

// RoomID returns matrix.room_id. Call Validate first.
func (c *Config) RoomID() ref.RoomID {
	roomID, _ := ref.ParseRoomID(c.Matrix.RoomID)
	return roomID
}

// MatrixPassword moves the Matrix password into a secret.Buffer,
// reading password_file when it is set. The plain copy in the Config
// is cleared. The caller must Close the result.
func (c *Config) MatrixPassword() (*secret.Buffer, error) {
	if c.Matrix.PasswordFile != "" {
		buffer, err := secret.ReadFromPath(c.Matrix.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("matrix.password_file: %w", err)
		}
		return buffer, nil
	}
	buffer, err := secret.NewFromString(c.Matrix.Password)
	c.Matrix.Password = ""
	if err != nil {
		return nil, fmt.Errorf("matrix.password: %w", err)
	}
	return buffer, nil
}

// DatabasePassword moves the database password into a secret.Buffer
// and clears the plain copy. Returns nil, nil when no password is set.
func (c *Config) DatabasePassword() (*secret.Buffer, error) {
	if c.Database.Password == "" {
		return nil, nil
	}
	buffer, err := secret.NewFromString(c.Database.Password)
	c.Database.Password = ""
	if err != nil {
		return nil, fmt.Errorf("database.password: %w", err)
	}
	return buffer, nil
}
