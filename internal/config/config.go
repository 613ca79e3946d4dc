package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var configLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	configLogger = l
}

// Config represents the complete configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Content  ContentConfig  `yaml:"content" toml:"content"`
	Autosave AutosaveConfig `yaml:"autosave" toml:"autosave"`
	Remote   RemoteConfig   `yaml:"remote" toml:"remote"`
	Local    LocalConfig    `yaml:"local" toml:"local"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing" toml:"tracing"`
}

type LoggingConfig struct {
	Level string `yaml:"level" toml:"level" default:"info"`
}

type ServerConfig struct {
	Host string `yaml:"host" toml:"host" default:"0.0.0.0"`
	Port string `yaml:"port" toml:"port" default:"12600"`
	// Manual saves per second accepted by the host, per process.
	SaveRate  float64 `yaml:"save_rate" toml:"save_rate" default:"2"`
	SaveBurst int     `yaml:"save_burst" toml:"save_burst" default:"4"`
}

type ContentConfig struct {
	ID string `yaml:"id" toml:"id" default:"default"`
}

type AutosaveConfig struct {
	Enabled  bool          `yaml:"enabled" toml:"enabled" default:"true"`
	Interval time.Duration `yaml:"interval" toml:"interval" default:"30s"`
}

const (
	RemoteHTTP = "http"
	RemoteS3   = "s3"

	LocalMemory = "memory"
	LocalSQLite = "sqlite"
	LocalFS     = "fs"
)

type RemoteConfig struct {
	Type      string        `yaml:"type" toml:"type" default:"http"`
	URL       string        `yaml:"url" toml:"url" default:"http://localhost:3000"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout" default:"10s"`
	RateLimit float64       `yaml:"rate_limit" toml:"rate_limit" default:"0"`
	RateBurst int           `yaml:"rate_burst" toml:"rate_burst" default:"1"`
	S3        S3Config      `yaml:"s3" toml:"s3"`
}

// S3Config holds the bucket location. Credentials are never read from the
// file; see ApplyEnv.
type S3Config struct {
	Bucket          string `yaml:"bucket" toml:"bucket" default:""`
	Region          string `yaml:"region" toml:"region" default:"auto"`
	Endpoint        string `yaml:"endpoint" toml:"endpoint" default:""`
	AccessKeyID     string `yaml:"-" toml:"-"`
	SecretAccessKey string `yaml:"-" toml:"-"`
}

type LocalConfig struct {
	Type        string `yaml:"type" toml:"type" default:"sqlite"`
	Path        string `yaml:"path" toml:"path" default:"docsave.db"`
	Compression string `yaml:"compression" toml:"compression" default:"zstd"`
	// Byte quota for the memory store. Zero is unlimited.
	QuotaBytes int `yaml:"quota_bytes" toml:"quota_bytes" default:"5242880"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled" default:"false"`
	Stdout      bool   `yaml:"stdout" toml:"stdout" default:"false"`
	ServiceName string `yaml:"service_name" toml:"service_name" default:"docsave"`
}

// Environment variables read by ApplyEnv.
const (
	EnvS3AccessKeyID     = "DOCSAVE_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "DOCSAVE_S3_SECRET_ACCESS_KEY"
	EnvRemoteURL         = "DOCSAVE_REMOTE_URL"
	EnvLogLevel          = "DOCSAVE_LOG_LEVEL"
)

var AppConfig *Config

// LoadConfig reads a YAML file, or a TOML file when the name ends in .toml,
// over the defaults and sets AppConfig. A missing file leaves the defaults.
func LoadConfig(path string) error {
	config := &Config{}

	// Apply default values first
	applyDefaults(config)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		configLogger.Info().Str("path", path).Msg("Config file not found, using defaults")
	} else if err := decode(path, data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return err
	}

	AppConfig = config
	return nil
}

func decode(path string, data []byte, config *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(string(data), config)
		return err
	}
	return yaml.Unmarshal(data, config)
}

// ApplyEnv overrides settings from the environment. S3 credentials only
// come from here.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvS3AccessKeyID); v != "" {
		c.Remote.S3.AccessKeyID = v
	}
	if v := os.Getenv(EnvS3SecretAccessKey); v != "" {
		c.Remote.S3.SecretAccessKey = v
	}
	if v := os.Getenv(EnvRemoteURL); v != "" {
		c.Remote.URL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	switch c.Remote.Type {
	case RemoteHTTP:
		if c.Remote.URL == "" {
			return invalid("remote.url", "required for the http remote")
		}
	case RemoteS3:
		if c.Remote.S3.Bucket == "" {
			return invalid("remote.s3.bucket", "required for the s3 remote")
		}
	default:
		return invalid("remote.type", fmt.Sprintf("unknown remote %q", c.Remote.Type))
	}

	switch c.Local.Type {
	case LocalMemory, LocalSQLite:
	case LocalFS:
		if c.Local.Path == "" {
			return invalid("local.path", "required for the fs store")
		}
	default:
		return invalid("local.type", fmt.Sprintf("unknown local store %q", c.Local.Type))
	}

	if c.Autosave.Enabled && c.Autosave.Interval <= 0 {
		return invalid("autosave.interval", "must be positive")
	}
	if c.Remote.Timeout < 0 {
		return invalid("remote.timeout", "must not be negative")
	}
	return nil
}

func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func ApplyDefaults(config interface{}) {
	applyDefaults(config)
}

var durationType = reflect.TypeOf(time.Duration(0))

func applyDefaults(config interface{}) {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.IsValid() || !field.CanSet() {
			continue
		}

		// Recursively apply defaults to nested structs
		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr().Interface())
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(defaultValue)
		case reflect.Bool:
			if val, err := strconv.ParseBool(defaultValue); err == nil {
				field.SetBool(val)
			}
		case reflect.Int:
			if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Int64:
			if field.Type() == durationType {
				if val, err := time.ParseDuration(defaultValue); err == nil {
					field.SetInt(int64(val))
				}
			} else if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Float64:
			if val, err := strconv.ParseFloat(defaultValue, 64); err == nil {
				field.SetFloat(val)
			}
		case reflect.Slice:
			if field.Len() == 0 && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(defaultValue, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for j, part := range parts {
					slice.Index(j).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		default:
			configLogger.Warn().
				Str("field_name", fieldType.Name).
				Str("field_type", field.Kind().String()).
				Msg("Unsupported field type for default value")
		}
	}
}
