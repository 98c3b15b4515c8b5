// Command simnoded runs a simulation participant. It is the embedding
// layer: it reads the process environment and configuration files and
// hands the core an explicit configuration; the core itself never looks
// at the environment.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/simnode"
	"github.com/GoCodeAlone/simnode/clock"
	"github.com/GoCodeAlone/simnode/participant"
	"github.com/GoCodeAlone/simnode/servicebus"
	"github.com/GoCodeAlone/simnode/simbus"
)

// Environment variables honoured by the embedding layer.
const (
	envLogSeverity     = "SIMNODE_LOG_SEVERITY"
	envNetworkIface    = "SIMNODE_NETWORK_INTERFACE"
	envDiscoveryDomain = "SIMNODE_DISCOVERY_DOMAIN"
	envSystemURL       = "SIMNODE_SYSTEM_URL"
	envServerURL       = "SIMNODE_SERVER_URL"
)

// fileConfig is the on-disk configuration shape, YAML or TOML.
type fileConfig struct {
	ParticipantName string            `yaml:"participantName" toml:"participantName"`
	SystemName      string            `yaml:"systemName" toml:"systemName"`
	SystemURL       string            `yaml:"systemUrl" toml:"systemUrl"`
	ServerURL       string            `yaml:"serverUrl" toml:"serverUrl"`
	Clock           clock.Config      `yaml:"clock" toml:"clock"`
	ServiceBus      servicebus.Config `yaml:"serviceBus" toml:"serviceBus"`
	SimBus          simbus.Config     `yaml:"simBus" toml:"simBus"`
}

func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{
		Clock:      clock.DefaultConfig(),
		ServiceBus: servicebus.DefaultConfig(),
		SimBus:     simbus.DefaultConfig(),
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return cfg, nil
}

// severityToLevel maps the integer severity code of the logging
// environment variable onto slog levels.
func severityToLevel(severity int) slog.Level {
	// 0 off, 1 fatal, 2 error, 3 warning, 4 info, 5 debug.
	switch {
	case severity <= 2:
		return slog.LevelError
	case severity == 3:
		return slog.LevelWarn
	case severity == 4:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func run() error {
	configPath := flag.String("config", "", "configuration file (.yaml or .toml)")
	name := flag.String("name", "", "participant name (overrides config)")
	system := flag.String("system", "", "system name (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *name != "" {
		cfg.ParticipantName = *name
	}
	if *system != "" {
		cfg.SystemName = *system
	}
	if cfg.ParticipantName == "" || cfg.SystemName == "" {
		return fmt.Errorf("participant name and system name are required")
	}

	level := slog.LevelInfo
	if v := os.Getenv(envLogSeverity); v != "" {
		if severity, err := strconv.Atoi(v); err == nil {
			level = severityToLevel(severity)
		}
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := simnode.NewSlogLogger(slog.New(handler))

	if v := os.Getenv(envSystemURL); v != "" {
		cfg.SystemURL = v
	}
	if v := os.Getenv(envServerURL); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv(envNetworkIface); v != "" {
		logger.Info("using network interface", "interface", v)
	}
	if v := os.Getenv(envDiscoveryDomain); v != "" {
		if domain, err := strconv.ParseInt(v, 10, 32); err == nil {
			cfg.SimBus.ParticipantDomain = int32(domain)
		}
	}

	p, err := participant.New(cfg.ParticipantName, cfg.SystemName, participant.Options{
		Logger:           logger,
		ClockConfig:      &cfg.Clock,
		ServiceBusConfig: &cfg.ServiceBus,
		SimBusConfig:     &cfg.SimBus,
		SystemURL:        cfg.SystemURL,
		ServerURL:        cfg.ServerURL,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	logger.Info("participant running", "participant", p.Identity().String(),
		"url", p.SystemAccess().Server().URL())

	// The participant is driven remotely over the lifecycle RPC; block
	// until the process receives SIGINT or SIGTERM. Finalizing the
	// participant does not end the process.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	logger.Info("shutting down", "participant", p.Identity().String())
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
