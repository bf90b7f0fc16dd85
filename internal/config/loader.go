package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// loaderDeps holds the injectable dependencies for the loader, enabling
// testing without touching the real executable or home directories.
type loaderDeps struct {
	executable    func() (string, error)
	getwd         func() (string, error)
	userConfigDir func() (string, error)
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		executable:    os.Executable,
		getwd:         os.Getwd,
		userConfigDir: os.UserConfigDir,
	}
}

// Load reads the configuration. Variables already set in the environment
// win over the .env file.
func Load() (*Config, error) {
	return load(defaultDeps(), false)
}

// Reload re-reads the .env file, letting it override the environment, and
// returns a new Config. The previous instance is left untouched.
func Reload() (*Config, error) {
	return load(defaultDeps(), true)
}

func load(deps loaderDeps, override bool) (*Config, error) {
	envFile := findEnvFile(deps)
	if envFile != "" {
		loadFn := godotenv.Load
		if override {
			loadFn = godotenv.Overload
		}
		if err := loadFn(envFile); err != nil {
			return nil, &ConfigError{
				Type:    ErrDotenv,
				Message: "failed to read " + envFile,
				Err:     err,
			}
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}
	cfg.EnvFile = envFile

	if cfg.NightscoutURL == "" {
		return nil, &ConfigError{
			Type:    ErrMissingEnv,
			Message: "set NIGHTSCOUT_URL in the environment or a .env file",
			Err:     ErrNotConfigured,
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	cfg.location = time.Local
	if cfg.TZName != "" {
		loc, err := time.LoadLocation(cfg.TZName)
		if err != nil {
			return nil, &ConfigError{
				Type:    ErrValidation,
				Message: "unknown TZ_NAME",
				Err:     err,
			}
		}
		cfg.location = loc
	}

	return &cfg, nil
}

// envCandidates lists the directories searched for a .env file in priority
// order: next to the executable, the working directory, then the per-user
// config directory.
func envCandidates(deps loaderDeps) []string {
	var dirs []string
	if exe, err := deps.executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if wd, err := deps.getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	if dir, err := deps.userConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, AppName))
	}

	seen := make(map[string]bool, len(dirs))
	out := dirs[:0]
	for _, d := range dirs {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// findEnvFile returns the first existing .env file, or "" when there is none
func findEnvFile(deps loaderDeps) string {
	for _, dir := range envCandidates(deps) {
		path := filepath.Join(dir, ".env")
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}
