package config

import (
	"fmt"
	"maps"

	"github.com/phrazzld/dbtestkit/internal/dbconn"
)

// Config holds all dbtestkit configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Build    BuildConfig    `mapstructure:"build" validate:"required"`
	Log      LogConfig      `mapstructure:"log" validate:"required"`
}

// DatabaseConfig describes the database to build. URL, when set, takes
// precedence over the individual fields.
type DatabaseConfig struct {
	URL      string            `mapstructure:"url" validate:"omitempty,uri"`
	Driver   string            `mapstructure:"driver" validate:"required_without=URL"`
	Host     string            `mapstructure:"host" validate:"required_without=URL"`
	Port     int               `mapstructure:"port" validate:"gte=0,lt=65536"`
	Name     string            `mapstructure:"name" validate:"required_without=URL"`
	User     string            `mapstructure:"user"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

// BuildConfig contains the settings of the build pipeline.
type BuildConfig struct {
	// DirectiveFile is the YAML directive list.
	DirectiveFile string `mapstructure:"directive_file" validate:"required"`
	// Retention is the number of database generations kept by pruning.
	Retention int `mapstructure:"retention" validate:"gte=0"`
	// Threshold is the SQL file size in bytes handed to the external loader.
	Threshold  int64  `mapstructure:"threshold" validate:"gt=0"`
	PsqlBinary string `mapstructure:"psql_binary" validate:"required"`
	QueryLog   string `mapstructure:"query_log"`
	TempDir    string `mapstructure:"temp_dir"`
	// Passwords maps directive users to their passwords.
	Passwords map[string]string `mapstructure:"passwords"`
}

// LogConfig contains the logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// Params converts the database settings to connection parameters.
func (c DatabaseConfig) Params() (dbconn.Params, error) {
	if c.URL != "" {
		p, err := dbconn.ParseURL(c.URL)
		if err != nil {
			return dbconn.Params{}, fmt.Errorf("invalid database.url: %w", err)
		}
		return p, nil
	}

	kind, err := dbconn.ParseDriverKind(c.Driver)
	if err != nil {
		return dbconn.Params{}, fmt.Errorf("invalid database.driver: %w", err)
	}
	port := c.Port
	if kind == dbconn.SQLite {
		port = 0
	}
	return dbconn.Params{
		Driver:   kind,
		Host:     c.Host,
		Port:     port,
		Database: c.Name,
		User:     c.User,
		Password: c.Password,
		Options:  maps.Clone(c.Options),
	}, nil
}
