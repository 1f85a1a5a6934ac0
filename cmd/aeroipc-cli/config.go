package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aeroipc/aeroipc-go/pkg/aero"
)

// cliConfig carries defaults loadable from a YAML file, overridden by
// command-line flags.
type cliConfig struct {
	Dir         string `yaml:"dir"`
	Channel     string `yaml:"channel"`
	StreamID    int32  `yaml:"stream-id"`
	PongChannel string `yaml:"pong-channel"`
	PongStream  int32  `yaml:"pong-stream-id"`
}

func defaultCliConfig() cliConfig {
	return cliConfig{
		Channel:     "aeron:ipc",
		StreamID:    1001,
		PongChannel: "aeron:ipc",
		PongStream:  1002,
	}
}

// loadConfig merges the optional YAML file over the built-in defaults.
func loadConfig() (cliConfig, error) {
	cfg := defaultCliConfig()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", configFile, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", configFile, err)
		}
	}

	return cfg, nil
}

// newClientContext builds a client context from config and flags.
func newClientContext(cfg cliConfig) *aero.Context {
	ctx := aero.NewContext()
	if cfg.Dir != "" {
		ctx.WithDir(cfg.Dir)
	}
	if driverDir != "" {
		ctx.WithDir(driverDir)
	}
	return ctx
}
