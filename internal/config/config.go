// Package config loads the service configuration from a TOML file and hosts
// the runtime flag registry.
package config

import (
	"fmt"
	"log/slog"

	"github.com/BurntSushi/toml"
)

// ConfigStruct is the glue for all configuration sections
type ConfigStruct struct {
	Common   Common   `toml:"common"`
	Database Database `toml:"database"`
	Bench    Bench    `toml:"bench"`
	Discord  Discord  `toml:"discord"`
	Inputs   Inputs   `toml:"inputs"`
}

// Common is the data required for all components
type Common struct {
	LogDir     string `toml:"log_dir"`
	Debug      bool   `toml:"debug"`
	Year       int    `toml:"year"`
	APIAddress string `toml:"api_address"`
}

// Database is the data required to establish a PostgreSQL connection
type Database struct {
	DBname   string `toml:"dbname"`
	Host     string `toml:"host"`
	SSLmode  string `toml:"sslmode"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// String returns a DSN with all information from the struct
func (d Database) String() string {
	dsn := fmt.Sprintf("sslmode=%s host=%s user=%s dbname=%s", d.SSLmode, d.Host, d.User, d.DBname)
	if d.Password != "" {
		dsn += " password=" + d.Password
	}
	return dsn
}

// Bench configures the sandboxed benchmark runs
type Bench struct {
	// RunnerDir is the docker build context with the benchmark harness; the
	// submission is dropped in as src/code.rs.
	RunnerDir string `toml:"runner_dir"`

	CPUSet      string `toml:"cpu_set"`
	MemoryLimit string `toml:"memory_limit"`
	// TimeoutSeconds bounds the wall clock of a single container run
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Discord is the chat frontend section
type Discord struct {
	Token string `toml:"token"`
	// AdminIDs may trigger reruns and hash migrations
	AdminIDs []int64 `toml:"admin_ids"`
	// TrustedIDs may additionally view inputs and submitted answers
	TrustedIDs []int64 `toml:"trusted_ids"`
}

// Inputs configures the fixture store
type Inputs struct {
	Dir string `toml:"dir"`
	// SessionTokens are adventofcode.com session cookies; each one fetches
	// its own input file, so they double as fixture identifiers.
	SessionTokens []string `toml:"session_tokens"`
}

// C represents the loaded config
var C ConfigStruct

func Load(path string) error {
	md, err := toml.DecodeFile(path, &C)
	if err != nil {
		return err
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		slog.Warn("Undecoded config keys", slog.Any("keys", keys))
	}
	applyDefaults()
	return nil
}

func applyDefaults() {
	if C.Common.Year == 0 {
		C.Common.Year = 2025
	}
	if C.Common.APIAddress == "" {
		C.Common.APIAddress = "localhost:8077"
	}
	if C.Bench.RunnerDir == "" {
		C.Bench.RunnerDir = "runner"
	}
	if C.Bench.MemoryLimit == "" {
		C.Bench.MemoryLimit = "120GB"
	}
	if C.Bench.TimeoutSeconds == 0 {
		C.Bench.TimeoutSeconds = 180
	}
	if C.Inputs.Dir == "" {
		C.Inputs.Dir = "aoc_inputs"
	}
	if C.Database.SSLmode == "" {
		C.Database.SSLmode = "disable"
	}
}
