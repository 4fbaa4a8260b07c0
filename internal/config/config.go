// Package config loads propgroups configuration from a YAML file with
// PROPGROUPS_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/propgroups/internal/chexec"
	"github.com/roach88/propgroups/internal/keyfilter"
	"github.com/roach88/propgroups/internal/propgroup"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROPGROUPS_"

// Config is the top-level configuration.
type Config struct {
	ClickHouse ClickHouse `yaml:"clickhouse"`

	// Ledger is the path of the SQLite applied-statement ledger.
	Ledger string `yaml:"ledger"`

	// Tables lists the tables that carry property groups.
	Tables []Table `yaml:"tables"`
}

// ClickHouse holds connection settings.
type ClickHouse struct {
	Address     string        `yaml:"address"      env:"ADDRESS"`
	Database    string        `yaml:"database"     env:"DATABASE"`
	User        string        `yaml:"user"         env:"USER"`
	Password    string        `yaml:"password"     env:"PASSWORD"`
	Cluster     string        `yaml:"cluster"      env:"CLUSTER"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
}

// Table configures the groups of one table.
type Table struct {
	Name   string `yaml:"name"`
	Column string `yaml:"column"`

	// NoDefaults skips the built-in custom and feature_flags groups.
	NoDefaults bool    `yaml:"no_defaults,omitempty"`
	Groups     []Group `yaml:"groups,omitempty"`
}

// Group is an extra group. Its predicate is the expression evaluated by
// keyfilter, so it conforms by construction.
type Group struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
	Codec      string `yaml:"codec,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ClickHouse: ClickHouse{
			Address:     "localhost:9000",
			Database:    "default",
			User:        "default",
			DialTimeout: chexec.DefaultDialTimeout,
		},
		Ledger: "propgroups.db",
		Tables: []Table{
			{Name: "sharded_events", Column: "properties"},
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envOverrides holds the settings that can be overridden from the
// environment. Unset variables leave the loaded values in place.
type envOverrides struct {
	ClickHouse ClickHouse `envPrefix:"CLICKHOUSE_"`
	Ledger     string     `env:"LEDGER"`
}

func applyEnv(cfg *Config) error {
	o := envOverrides{ClickHouse: cfg.ClickHouse, Ledger: cfg.Ledger}
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	cfg.ClickHouse = o.ClickHouse
	cfg.Ledger = o.Ledger
	return nil
}

// Validate checks required fields and table uniqueness.
// Group definitions are checked by Registries.
func (c Config) Validate() error {
	var errs []error
	if c.ClickHouse.Address == "" {
		errs = append(errs, errors.New("clickhouse.address is required"))
	}
	if c.ClickHouse.DialTimeout < 0 {
		errs = append(errs, errors.New("clickhouse.dial_timeout must not be negative"))
	}
	if c.Ledger == "" {
		errs = append(errs, errors.New("ledger is required"))
	}
	if len(c.Tables) == 0 {
		errs = append(errs, errors.New("tables list is required and must be non-empty"))
	}

	seen := make(map[string]bool, len(c.Tables))
	for i, t := range c.Tables {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("tables[%d]: name is required", i))
			continue
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("tables[%d]: duplicate table %q", i, t.Name))
		}
		seen[t.Name] = true
		if t.Column == "" {
			errs = append(errs, fmt.Errorf("tables[%d]: column is required", i))
		}
		if t.NoDefaults && len(t.Groups) == 0 {
			errs = append(errs, fmt.Errorf("tables[%d]: no_defaults set but no groups configured", i))
		}
	}
	return errors.Join(errs...)
}

// Executor returns the connection settings for chexec.
func (c ClickHouse) Executor() chexec.Config {
	return chexec.Config{
		Address:     c.Address,
		Database:    c.Database,
		User:        c.User,
		Password:    c.Password,
		DialTimeout: c.DialTimeout,
	}
}

// Registries builds one registry per configured table, keyed by table name.
func (c Config) Registries() (map[string]*propgroup.Registry, error) {
	registries := make(map[string]*propgroup.Registry, len(c.Tables))
	for _, t := range c.Tables {
		r, err := t.registry(c.ClickHouse.Cluster)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", t.Name, err)
		}
		registries[t.Name] = r
	}
	return registries, nil
}

func (t Table) registry(cluster string) (*propgroup.Registry, error) {
	target := propgroup.Target{Cluster: cluster, Table: t.Name, Column: t.Column}

	var (
		r   *propgroup.Registry
		err error
	)
	if t.NoDefaults {
		r, err = propgroup.NewRegistry(target)
	} else {
		r, err = propgroup.NewEventsRegistry(target)
	}
	if err != nil {
		return nil, err
	}

	for _, g := range t.Groups {
		def, err := g.definition()
		if err != nil {
			return nil, err
		}
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (g Group) definition() (*propgroup.Definition, error) {
	expr, err := keyfilter.Parse(g.Expression)
	if err != nil {
		return nil, fmt.Errorf("group %s: expression: %w", g.Name, err)
	}
	var opts []propgroup.DefinitionOption
	if g.Codec != "" {
		opts = append(opts, propgroup.WithCodec(g.Codec))
	}
	// The rendered form only contains what the parser accepted, so nothing
	// outside the filter fragment reaches the DDL.
	return propgroup.NewDefinition(g.Name, expr.String(), expr.Eval, opts...)
}
