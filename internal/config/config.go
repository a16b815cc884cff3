// Package config resolves the settings service's process configuration
// from flags and environment variables, following the env-first-then-flag-
// override convention the teacher uses for its own dev/prod environment
// switches (internal/define/env_*.go).
package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"settingsvc/internal/define"
)

// Config is every knob the process needs at startup.
type Config struct {
	DataDir         string // base directory for the sqlite file and description artifacts
	DBFileName      string
	DescriptionDir  string
	ExceptionFile   string // pkg/exceptionlist source, "" disables per-app exceptions
	DimensionFile   string // pkg/dimensionformat source, "" falls back to an empty table
	WSAddr          string // wsbus listen address, e.g. ":8780"
	MaintenanceCron string // robfig/cron/v3 spec for the periodic sweep (§4.4.6)
	Locale          string // BCP-47 tag for localized error messages (errs.Catalog), e.g. "zh-CN"
}

// Default returns the configuration a bare invocation would use: sqlite
// and description artifacts under the OS user-config directory, wsbus on
// port 8780 of every interface, maintenance sweep once a minute.
func Default() Config {
	dataDir := filepath.Join(userConfigDir(), define.AppID)
	return Config{
		DataDir:         dataDir,
		DBFileName:      define.DefaultDBFileName,
		DescriptionDir:  filepath.Join(dataDir, define.DefaultDescriptionDir),
		ExceptionFile:   filepath.Join(dataDir, define.DefaultDescriptionDir, "exceptionAppList.json"),
		DimensionFile:   filepath.Join(dataDir, define.DefaultDescriptionDir, "dimensionFormat.json"),
		WSAddr:          ":8780",
		MaintenanceCron: "@every 1m",
		Locale:          "en",
	}
}

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

// Load resolves Config from, in increasing precedence: Default(), an
// optional YAML config file (-config, or $SETTINGSVC_CONFIG), environment
// variables, then flags. parses args (normally os.Args[1:]) last so an
// explicit flag always wins.
func Load(args []string) (Config, error) {
	cfg := Default()

	configPath := os.Getenv("SETTINGSVC_CONFIG")
	preScan := flag.NewFlagSet(define.AppID, flag.ContinueOnError)
	preScan.StringVar(&configPath, "config", configPath, "path to an optional YAML config file")
	preScan.SetOutput(io.Discard)
	preScan.Usage = func() {}
	_ = preScan.Parse(args)

	if configPath != "" {
		if err := cfg.applyFile(configPath); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()

	fs := flag.NewFlagSet(define.AppID, flag.ContinueOnError)
	fs.StringVar(&configPath, "config", configPath, "path to an optional YAML config file")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "base directory for the sqlite file and description artifacts")
	fs.StringVar(&cfg.DBFileName, "db-file", cfg.DBFileName, "sqlite file name within data-dir")
	fs.StringVar(&cfg.ExceptionFile, "exception-file", cfg.ExceptionFile, "path to exceptionAppList.json")
	fs.StringVar(&cfg.DimensionFile, "dimension-file", cfg.DimensionFile, "path to dimensionFormat.json")
	fs.StringVar(&cfg.WSAddr, "ws-addr", cfg.WSAddr, "listen address for the websocket bus")
	fs.StringVar(&cfg.MaintenanceCron, "maintenance-cron", cfg.MaintenanceCron, "cron spec for the periodic maintenance sweep")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "BCP-47 locale tag for localized error messages")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.DescriptionDir = filepath.Join(cfg.DataDir, define.DefaultDescriptionDir)
	return cfg, nil
}

// fileConfig mirrors the subset of Config a YAML file may override; zero
// values leave the corresponding Config field untouched.
type fileConfig struct {
	DataDir         string `yaml:"data_dir"`
	DBFileName      string `yaml:"db_file"`
	ExceptionFile   string `yaml:"exception_file"`
	DimensionFile   string `yaml:"dimension_file"`
	WSAddr          string `yaml:"ws_addr"`
	MaintenanceCron string `yaml:"maintenance_cron"`
	Locale          string `yaml:"locale"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}
	if fc.DataDir != "" {
		c.DataDir = fc.DataDir
	}
	if fc.DBFileName != "" {
		c.DBFileName = fc.DBFileName
	}
	if fc.ExceptionFile != "" {
		c.ExceptionFile = fc.ExceptionFile
	}
	if fc.DimensionFile != "" {
		c.DimensionFile = fc.DimensionFile
	}
	if fc.WSAddr != "" {
		c.WSAddr = fc.WSAddr
	}
	if fc.MaintenanceCron != "" {
		c.MaintenanceCron = fc.MaintenanceCron
	}
	if fc.Locale != "" {
		c.Locale = fc.Locale
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SETTINGSVC_DATA_DIR"); v != "" {
		c.DataDir = v
		c.DescriptionDir = filepath.Join(v, define.DefaultDescriptionDir)
	}
	if v := os.Getenv("SETTINGSVC_WS_ADDR"); v != "" {
		c.WSAddr = v
	}
	if v := os.Getenv("SETTINGSVC_MAINTENANCE_CRON"); v != "" {
		c.MaintenanceCron = v
	}
	if v := os.Getenv("SETTINGSVC_LOCALE"); v != "" {
		c.Locale = v
	}
	if v := os.Getenv("SETTINGSVC_EXCEPTION_FILE"); v != "" {
		c.ExceptionFile = v
	}
	if v := os.Getenv("SETTINGSVC_DIMENSION_FILE"); v != "" {
		c.DimensionFile = v
	}
}

// fileExists is a small helper service.New uses to decide whether to pass a
// real path to exceptionlist.Load/dimensionformat.Load or fall back to
// their Empty() constructors.
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// FileExists exposes fileExists for callers outside the package.
func FileExists(path string) bool { return fileExists(path) }
