package loadbalancer

import (
	"time"

	"github.com/cuemby/ballast/pkg/transport"
	"gopkg.in/yaml.v3"
)

// defaultTimeoutSeconds and defaultHealthyThreshold are the config defaults
// applied when a document omits those keys.
const (
	defaultTimeoutSeconds   = 30
	defaultHealthyThreshold = 0.5
	defaultWeight           = 1
	defaultMaxConcurrent    = 100
)

// ServerConfig is one entry of the config's servers list.
type ServerConfig struct {
	Name          string `yaml:"name"`
	URL           string `yaml:"url"`
	Weight        int    `yaml:"weight"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// Config is the structured configuration FromConfig accepts: strategy,
// timeout, healthy_threshold, and the servers list.
type Config struct {
	Strategy         string         `yaml:"strategy"`
	TimeoutSeconds   int            `yaml:"timeout"`
	HealthyThreshold float64        `yaml:"healthy_threshold"`
	Servers          []ServerConfig `yaml:"servers"`
}

// ParseConfig unmarshals a YAML document into a Config, applying defaults
// for any key the document omits.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = defaultTimeoutSeconds
	}
	if cfg.HealthyThreshold == 0 {
		cfg.HealthyThreshold = defaultHealthyThreshold
	}
	for i := range cfg.Servers {
		if cfg.Servers[i].Weight == 0 {
			cfg.Servers[i].Weight = defaultWeight
		}
		if cfg.Servers[i].MaxConcurrent == 0 {
			cfg.Servers[i].MaxConcurrent = defaultMaxConcurrent
		}
	}
	return cfg, nil
}

// FromConfig builds a LoadBalancer from a YAML document. port is the
// transport.Port backends are sent through; it isn't part of the
// serialized config since it's an injected capability, not data.
func FromConfig(data []byte, port transport.Port) (*LoadBalancer, error) {
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}

	backends := make([]BackendSpec, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		backends = append(backends, BackendSpec{
			ID:            s.Name,
			Endpoint:      s.URL,
			Weight:        s.Weight,
			MaxConcurrent: s.MaxConcurrent,
		})
	}

	return New(Options{
		Strategy:         StrategyName(cfg.Strategy),
		Timeout:          time.Duration(cfg.TimeoutSeconds) * time.Second,
		HealthyThreshold: cfg.HealthyThreshold,
		Backends:         backends,
		Transport:        port,
	})
}
