package cli

import (
	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr     string `env:"STARTERCTL_ADDR" envDefault:"http://127.0.0.1:8080"`
	Operator string `env:"STARTERCTL_OPERATOR"`
	Token    string `env:"STARTERCTL_TOKEN"`
	Output   string `env:"STARTERCTL_OUTPUT" envDefault:"text"`
}

// DefaultConfig reads defaults from the environment. Flags override them.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return &Config{Addr: "http://127.0.0.1:8080", Output: "text"}
	}
	return cfg
}
