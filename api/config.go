package api

import (
	"errors"
	"fmt"
)

// ErrConfig marks configuration errors. They are fatal and are reported
// before the emulated network starts.
var ErrConfig = errors.New("configuration error")

const (
	RuntimeNetns  = "netns"
	RuntimeDocker = "docker"

	DefaultExecDir   = "../build/src"
	DefaultLogDir    = "./logs"
	DefaultQuack     = 2
	DefaultThreshold = 8
	DefaultPort      = 9000
	DefaultFilter    = "ip and udp and not dst net 192.168 and not dst net 224"
)

// Config is the harness configuration, usually read from a YAML file.
type Config struct {
	Runtime string        `yaml:"runtime"`
	Image   string        `yaml:"image"`
	ExecDir string        `yaml:"execDir"`
	LogDir  string        `yaml:"logDir"`
	Links   LinksConfig   `yaml:"links"`
	Client  ProgramConfig `yaml:"client"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Server  ServerConfig  `yaml:"server"`
}

// LinksConfig holds the two segments of the chain: access is
// client<->router, backbone is router<->server.
type LinksConfig struct {
	Access   LinkProperties `yaml:"access"`
	Backbone LinkProperties `yaml:"backbone"`
}

type ProgramConfig struct {
	ExtraArgs string `yaml:"extraArgs"`
}

type ProxyConfig struct {
	Quack     int    `yaml:"quack"`     // quacking interval in seconds
	Threshold int    `yaml:"threshold"` // loss/delay detection threshold
	Filter    string `yaml:"filter"`
	ExtraArgs string `yaml:"extraArgs"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	ExtraArgs string `yaml:"extraArgs"`
}

// DefaultConfig returns the configuration of the reference evaluation:
// a lossy, fast, short access segment and a clean, slow, long backbone.
func DefaultConfig() *Config {
	return &Config{
		Runtime: RuntimeNetns,
		ExecDir: DefaultExecDir,
		LogDir:  DefaultLogDir,
		Links: LinksConfig{
			Access:   LinkProperties{Latency: 1, Loss: 3.6, Rate: 100},
			Backbone: LinkProperties{Latency: 25, Loss: 0, Rate: 10},
		},
		Proxy: ProxyConfig{
			Quack:     DefaultQuack,
			Threshold: DefaultThreshold,
			Filter:    DefaultFilter,
		},
		Server: ServerConfig{Port: DefaultPort},
	}
}

// Validate reports the first invalid value found in the configuration.
func (c *Config) Validate() error {
	switch c.Runtime {
	case RuntimeNetns, RuntimeDocker:
	default:
		return fmt.Errorf("%w: unknown runtime %q", ErrConfig, c.Runtime)
	}
	if err := c.Links.Access.Validate(); err != nil {
		return fmt.Errorf("access link: %w", err)
	}
	if err := c.Links.Backbone.Validate(); err != nil {
		return fmt.Errorf("backbone link: %w", err)
	}
	if c.Proxy.Quack <= 0 {
		return fmt.Errorf("%w: quack interval must be positive", ErrConfig)
	}
	if c.Proxy.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be positive", ErrConfig)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port %d", ErrConfig, c.Server.Port)
	}
	return nil
}
