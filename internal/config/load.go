package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/dbtestkit/internal/ciutil"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DBTESTKIT"

// ConfigName is the base name of the optional config file looked up in the
// working directory and the project root.
const ConfigName = "dbtestkit"

// Load reads configuration from an optional dbtestkit.yaml and from
// DBTESTKIT_* environment variables. Environment variables take precedence
// over values from the config file.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches for
// dbtestkit.yaml instead, and a missing file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
		if root, err := ciutil.FindProjectRoot(nil); err == nil {
			v.AddConfigPath(root)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("build.directive_file", "build.yaml")
	v.SetDefault("build.retention", 3)
	v.SetDefault("build.threshold", 1<<20)
	v.SetDefault("build.psql_binary", "psql")
	v.SetDefault("log.level", ciutil.DefaultLogLevel)
	v.SetDefault("log.format", ciutil.DefaultLogFormat)
}

// bindEnvs binds keys that have no default, so AutomaticEnv alone would not
// surface them to Unmarshal. database.url also honours the conventional
// DATABASE_URL.
func bindEnvs(v *viper.Viper) error {
	bindings := []struct {
		key  string
		envs []string
	}{
		{"database.url", []string{EnvPrefix + "_DATABASE_URL", ciutil.EnvDatabaseURL}},
		{"database.name", []string{EnvPrefix + "_DATABASE_NAME"}},
		{"database.user", []string{EnvPrefix + "_DATABASE_USER"}},
		{"database.password", []string{EnvPrefix + "_DATABASE_PASSWORD"}},
		{"build.query_log", []string{EnvPrefix + "_BUILD_QUERY_LOG"}},
		{"build.temp_dir", []string{EnvPrefix + "_BUILD_TEMP_DIR"}},
		{"log.level", []string{EnvPrefix + "_LOG_LEVEL", ciutil.EnvLogLevel}},
		{"log.format", []string{EnvPrefix + "_LOG_FORMAT", ciutil.EnvLogFormat}},
	}
	for _, b := range bindings {
		args := append([]string{b.key}, b.envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("error binding environment variable %s: %w", b.envs[0], err)
		}
	}
	return nil
}
