// Package config loads the reference server's startup configuration:
// the CLI flags and environment variables spec.md §6 names ("Server CLI
// (reference): --port ... --static_dir ...") plus the operational knobs
// spec.md leaves to the implementation (write timeout, allowed websocket
// origins). Grounded on the teacher's pkg/config.Config umbrella object
// and cmd/tarsy/main.go's getEnv helper and .env loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig is the umbrella configuration object for cmd/cloudmodeld,
// the reference server binary (spec.md §6).
type ServerConfig struct {
	// Port is the TCP port the HTTP/WebSocket server listens on.
	Port int

	// StaticDir, if non-empty, is served as static assets (spec.md §6:
	// "the server exits non-zero if --static_dir points to a missing
	// directory").
	StaticDir string

	// WriteTimeout bounds how long a single send to a connected client may
	// block (spec.md §5 single-threaded server model).
	WriteTimeout time.Duration

	// AllowedWSOrigins restricts the websocket upgrade's Origin check. An
	// empty list allows all origins (development default).
	AllowedWSOrigins []string
}

// Defaults mirror spec.md §6: "--port (int, default 3000)".
const (
	DefaultPort         = 3000
	DefaultWriteTimeout = 10 * time.Second
)

// Load builds a ServerConfig from environment variables (after loading an
// optional .env file from configDir), to be overridden by explicit flag
// values by the caller. This mirrors cmd/tarsy/main.go's shape: load .env
// first, then let explicitly set flags win.
func Load(configDir string) (*ServerConfig, error) {
	if configDir != "" {
		envPath := filepath.Join(configDir, ".env")
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	cfg := &ServerConfig{
		Port:         DefaultPort,
		WriteTimeout: DefaultWriteTimeout,
	}

	if v := os.Getenv("CLOUDMODEL_PORT"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &cfg.Port); err != nil {
			return nil, fmt.Errorf("invalid CLOUDMODEL_PORT %q: %w", v, err)
		}
	}
	if v := os.Getenv("CLOUDMODEL_STATIC_DIR"); v != "" {
		cfg.StaticDir = v
	}

	return cfg, nil
}

// ValidateStaticDir enforces spec.md §6's exit condition: "the server
// exits non-zero if --static_dir points to a missing directory."
func (c *ServerConfig) ValidateStaticDir() error {
	if c.StaticDir == "" {
		return nil
	}
	info, err := os.Stat(c.StaticDir)
	if err != nil {
		return fmt.Errorf("static_dir %q: %w", c.StaticDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("static_dir %q is not a directory", c.StaticDir)
	}
	return nil
}

// Addr returns the listen address for net/http.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
