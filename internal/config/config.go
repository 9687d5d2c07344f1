// Package config binds the engine's process configuration from
// environment variables via viper, mirroring the teacher's
// internal/config package: transport selection, database location,
// server identity, and the note schema file path.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/ravelhq/ravel/internal/types"
)

// Transport selects how cmd/ravelmcp exposes the tool registry.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// Config is the engine's process-level configuration, bound once at
// startup and passed by value/pointer thereafter — never read from the
// environment again mid-process.
type Config struct {
	DatabasePath   string
	Transport      Transport
	HTTPHost       string
	HTTPPort       int
	ServerName     string
	NoteSchemaPath string
	Debug          bool
}

// Load binds Config from the environment, applying the same defaults
// the teacher's CLI falls back to when unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ravel")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("database_path", "./ravel.db")
	v.SetDefault("transport", string(TransportStdio))
	v.SetDefault("http_host", "127.0.0.1")
	v.SetDefault("http_port", 8765)
	v.SetDefault("server_name", "ravel")
	v.SetDefault("note_schema_path", "")

	// DATABASE_PATH has no RAVEL_ prefix in spec.md §9.2; bind it explicitly.
	_ = v.BindEnv("database_path", "DATABASE_PATH")

	transport := Transport(strings.ToLower(v.GetString("transport")))
	if transport != TransportStdio && transport != TransportHTTP {
		return nil, types.Validation("RAVEL_TRANSPORT must be %q or %q, got %q", TransportStdio, TransportHTTP, transport)
	}

	return &Config{
		DatabasePath:   v.GetString("database_path"),
		Transport:      transport,
		HTTPHost:       v.GetString("http_host"),
		HTTPPort:       v.GetInt("http_port"),
		ServerName:     v.GetString("server_name"),
		NoteSchemaPath: v.GetString("note_schema_path"),
		Debug:          v.GetBool("debug"),
	}, nil
}
