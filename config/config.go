package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/routeloop/core/cycle"
	"github.com/kilianp07/routeloop/core/federation"
	"github.com/kilianp07/routeloop/core/ledger"
	"github.com/kilianp07/routeloop/core/metrics"
	"github.com/kilianp07/routeloop/core/solver"
	"github.com/kilianp07/routeloop/infra/anchor"
	"github.com/kilianp07/routeloop/infra/mqtt"
	"github.com/kilianp07/routeloop/infra/nowcast"
	"github.com/kilianp07/routeloop/simulator"
)

type Config struct {
	ActorID    string            `json:"actor_id"`
	Route      RouteConfig       `json:"route"`
	Cycle      cycle.Config      `json:"cycle"`
	Solver     solver.Config     `json:"solver"`
	Federation federation.Config `json:"federation"`
	Nowcast    nowcast.Config    `json:"nowcast"`
	Simulator  simulator.Config  `json:"simulator"`
	Ledger     ledger.Config     `json:"ledger"`
	Anchor     anchor.Config     `json:"anchor"`
	MQTT       mqtt.Config       `json:"mqtt"`
	Metrics    metrics.Config    `json:"metrics"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Route.SetDefaults()
	c.Cycle.SetDefaults()
	c.Solver.SetDefaults()
	c.Federation.SetDefaults()
	c.Nowcast.SetDefaults()
	c.Simulator.SetDefaults()
	c.Ledger.SetDefaults()
	c.Anchor.SetDefaults()
	c.MQTT.SetDefaults()
	c.Metrics.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if c.ActorID == "" {
		return fmt.Errorf("actor_id is required")
	}
	if err := c.Route.Validate(); err != nil {
		return err
	}
	if err := c.Cycle.Validate(); err != nil {
		return fmt.Errorf("cycle: %w", err)
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	if err := c.Federation.Validate(); err != nil {
		return fmt.Errorf("federation: %w", err)
	}
	if err := c.Nowcast.Validate(); err != nil {
		return fmt.Errorf("nowcast: %w", err)
	}
	if err := c.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if err := c.Anchor.Validate(); err != nil {
		return fmt.Errorf("anchor: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides. The callback maps RL_A__B to a.b, so
	// the provider must unflatten on the dot.
	if err := k.Load(env.Provider("RL_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "rl_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
