// Package config loads plantgrid settings from an optional TOML file and
// environment overrides. Values are resolved once at startup and handed to
// components explicitly.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvPython            = "PYTHON"
	EnvAddr              = "PLANTGRID_ADDR"
	EnvLayoutInterpreter = "PLANTGRID_LAYOUT_INTERPRETER"
	EnvLayoutScript      = "PLANTGRID_LAYOUT_SCRIPT"
	EnvLayoutOutputRoot  = "PLANTGRID_LAYOUT_OUTPUT_DIR"
	EnvCSVDir            = "PLANTGRID_CSV_DIR"
	EnvBlobDriver        = "PLANTGRID_BLOB_DRIVER"
	EnvBlobFSRoot        = "PLANTGRID_BLOB_FS_ROOT"
	EnvBlobS3Bucket      = "PLANTGRID_BLOB_S3_BUCKET"
	EnvBlobS3Region      = "PLANTGRID_BLOB_S3_REGION"
	EnvBlobS3Endpoint    = "PLANTGRID_BLOB_S3_ENDPOINT"
	EnvBlobS3PathStyle   = "PLANTGRID_BLOB_S3_PATH_STYLE"
	EnvStoreDriver       = "PLANTGRID_STORE_DRIVER"
	EnvStoreDSN          = "PLANTGRID_STORE_DSN"
	EnvLogLevel          = "PLANTGRID_LOG_LEVEL"
	EnvLogFormat         = "PLANTGRID_LOG_FORMAT"
)

// Config is the full runtime configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`
	Version VersionConfig `toml:"version"`
	Layout  LayoutConfig  `toml:"layout"`
	Blob    BlobConfig    `toml:"blob"`
	Store   StoreConfig   `toml:"store"`
}

type ServerConfig struct {
	Addr            string   `toml:"addr"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// VersionConfig names the interpreter reported by the version endpoint.
type VersionConfig struct {
	Interpreter string `toml:"interpreter"`
}

// LayoutConfig drives serialization and the external layout tool.
type LayoutConfig struct {
	Interpreter string  `toml:"interpreter"`
	Script      string  `toml:"script"`
	CSVDir      string  `toml:"csv_dir"`
	OutputRoot  string  `toml:"output_root"`
	DefaultCell float64 `toml:"default_cell"`
}

type BlobConfig struct {
	Driver string   `toml:"driver"`
	FSRoot string   `toml:"fs_root"`
	S3     S3Config `toml:"s3"`
}

type S3Config struct {
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	PathStyle bool   `toml:"path_style"`
}

type StoreConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// Duration decodes TOML strings such as "5s".
type Duration struct{ time.Duration }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Driver names accepted by Validate.
var (
	blobDrivers  = []string{"fs", "memory", "s3"}
	storeDrivers = []string{"memory", "sqlite", "postgres"}
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080", ShutdownTimeout: Duration{5 * time.Second}},
		Log:    LogConfig{Level: "info", Format: "console"},
		Version: VersionConfig{
			Interpreter: "python3",
		},
		Layout: LayoutConfig{
			Interpreter: "python",
			Script:      "plant_layout/main.py",
			DefaultCell: 0.5,
		},
		Blob:  BlobConfig{Driver: "fs", FSRoot: "./blobdata"},
		Store: StoreConfig{Driver: "memory"},
	}
}

// Load decodes path (when non-empty) over Default, applies the process
// environment and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays non-empty environment values.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvPython, &c.Version.Interpreter)
	str(EnvAddr, &c.Server.Addr)
	str(EnvLayoutInterpreter, &c.Layout.Interpreter)
	str(EnvLayoutScript, &c.Layout.Script)
	str(EnvLayoutOutputRoot, &c.Layout.OutputRoot)
	str(EnvCSVDir, &c.Layout.CSVDir)
	str(EnvBlobDriver, &c.Blob.Driver)
	str(EnvBlobFSRoot, &c.Blob.FSRoot)
	str(EnvBlobS3Bucket, &c.Blob.S3.Bucket)
	str(EnvBlobS3Region, &c.Blob.S3.Region)
	str(EnvBlobS3Endpoint, &c.Blob.S3.Endpoint)
	str(EnvStoreDriver, &c.Store.Driver)
	str(EnvStoreDSN, &c.Store.DSN)
	str(EnvLogLevel, &c.Log.Level)
	str(EnvLogFormat, &c.Log.Format)
	if v, ok := lookup(EnvBlobS3PathStyle); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBlobS3PathStyle, err)
		}
		c.Blob.S3.PathStyle = b
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Layout.Script) == "" {
		errs = append(errs, errors.New("layout.script is required"))
	}
	if strings.TrimSpace(c.Layout.Interpreter) == "" {
		errs = append(errs, errors.New("layout.interpreter is required"))
	}
	if strings.TrimSpace(c.Version.Interpreter) == "" {
		errs = append(errs, errors.New("version.interpreter is required"))
	}
	if c.Server.ShutdownTimeout.Duration <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Layout.DefaultCell < 0 {
		errs = append(errs, fmt.Errorf("layout.default_cell must be >= 0, got %v", c.Layout.DefaultCell))
	}
	if !oneOf(c.Blob.Driver, blobDrivers) {
		errs = append(errs, fmt.Errorf("unknown blob driver %q (want one of %s)", c.Blob.Driver, strings.Join(blobDrivers, ", ")))
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		errs = append(errs, errors.New("blob.s3.bucket is required for the s3 driver"))
	}
	if !oneOf(c.Store.Driver, storeDrivers) {
		errs = append(errs, fmt.Errorf("unknown store driver %q (want one of %s)", c.Store.Driver, strings.Join(storeDrivers, ", ")))
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
