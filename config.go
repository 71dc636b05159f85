package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/alexflint/go-arg"
	"github.com/pkg/errors"
)

const version = "0.3.0"

// Config : CLI args
type Config struct {
	Policies       []string `arg:"positional" help:"policies to reconcile (see --list)"`
	Credentials    string   `arg:"-c,--credentials" help:"CSV file with APIC_URL, USERNAME and PASSWORD columns"`
	ConfigFile     string   `arg:"--config" help:"TOML run configuration"`
	PolicyFile     string   `arg:"--policy-file" help:"YAML file with additional policy definitions"`
	Name           string   `arg:"-n,--name" help:"object name for the named policy; allowed with one named policy per run"`
	Yes            bool     `arg:"-y,--yes" help:"answer yes to every confirmation"`
	No             bool     `arg:"--no" help:"answer no to every confirmation (report only)"`
	Select         string   `arg:"-s,--select" help:"groups to associate: numbers or names, comma separated, or all"`
	Insecure       bool     `arg:"-k,--insecure" help:"skip TLS certificate verification"`
	RequestTimeout int      `arg:"--request-timeout" help:"HTTP request timeout in seconds"`
	Workers        int      `arg:"-w,--workers" help:"controllers processed in parallel"`
	Report         string   `arg:"-r,--report" help:"write the JSON report to this file"`
	LogFile        string   `arg:"--log-file" help:"rotating JSON log file, empty to disable"`
	Verbose        bool     `arg:"-v"`
	List           bool     `arg:"-l,--list" help:"list available policies and exit"`
}

// Description : App description for CLI interface
func (Config) Description() string {
	return "Reconcile ACI fabric policies across one or more APICs"
}

// Version : App version string for CLI interface
func (Config) Version() string {
	return fmt.Sprintf("fabricpol version %s", version)
}

func defaultConfig() Config {
	return Config{
		RequestTimeout: 30,
		Workers:        1,
		LogFile:        "fabricpol.log",
	}
}

type runFile struct {
	Credentials    string `toml:"credentials"`
	PolicyFile     string `toml:"policy_file"`
	Name           string `toml:"name"`
	Assume         string `toml:"assume"`
	Select         string `toml:"select"`
	Insecure       bool   `toml:"insecure"`
	RequestTimeout int    `toml:"request_timeout"`
	Workers        int    `toml:"workers"`
	Report         string `toml:"report"`
	LogFile        string `toml:"log_file"`
	Verbose        bool   `toml:"verbose"`
}

// loadRunFile overlays the keys present in a TOML file onto cfg.
func loadRunFile(path string, cfg *Config) error {
	var raw runFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return errors.Wrap(err, "load run config")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return errors.Errorf("load run config: unknown key %s", undecoded[0])
	}
	if meta.IsDefined("credentials") {
		cfg.Credentials = strings.TrimSpace(raw.Credentials)
	}
	if meta.IsDefined("policy_file") {
		cfg.PolicyFile = strings.TrimSpace(raw.PolicyFile)
	}
	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("assume") {
		switch strings.ToLower(strings.TrimSpace(raw.Assume)) {
		case "yes":
			cfg.Yes = true
		case "no":
			cfg.No = true
		case "", "ask":
		default:
			return errors.Errorf("load run config: assume must be yes, no or ask, not %q", raw.Assume)
		}
	}
	if meta.IsDefined("select") {
		cfg.Select = strings.TrimSpace(raw.Select)
	}
	if meta.IsDefined("insecure") {
		cfg.Insecure = raw.Insecure
	}
	if meta.IsDefined("request_timeout") {
		cfg.RequestTimeout = raw.RequestTimeout
	}
	if meta.IsDefined("workers") {
		cfg.Workers = raw.Workers
	}
	if meta.IsDefined("report") {
		cfg.Report = strings.TrimSpace(raw.Report)
	}
	if meta.IsDefined("log_file") {
		cfg.LogFile = strings.TrimSpace(raw.LogFile)
	}
	if meta.IsDefined("verbose") {
		cfg.Verbose = raw.Verbose
	}
	return nil
}

func (cfg Config) validate() error {
	switch {
	case cfg.Yes && cfg.No:
		return errors.New("--yes and --no are mutually exclusive")
	case cfg.RequestTimeout <= 0:
		return errors.New("--request-timeout must be positive")
	case cfg.Workers < 1:
		return errors.New("--workers must be at least 1")
	case !cfg.List && len(cfg.Policies) == 0:
		return errors.New("no policy given (use --list)")
	}
	return nil
}

// parseConfig applies defaults, then the run file named by --config, then
// the command line.
func parseConfig(args []string) (Config, *arg.Parser, error) {
	cfg := defaultConfig()
	p, err := arg.NewParser(arg.Config{Program: "fabricpol"}, &cfg)
	if err != nil {
		return cfg, nil, err
	}
	if err := p.Parse(args); err != nil {
		return cfg, p, err
	}
	if cfg.ConfigFile != "" {
		layered := defaultConfig()
		if err := loadRunFile(cfg.ConfigFile, &layered); err != nil {
			return cfg, p, err
		}
		cfg = layered
		if p, err = arg.NewParser(arg.Config{Program: "fabricpol"}, &cfg); err != nil {
			return cfg, nil, err
		}
		if err := p.Parse(args); err != nil {
			return cfg, p, err
		}
	}
	return cfg, p, cfg.validate()
}

// checkName rejects a --name that would be given to more than one named
// policy.
func checkName(name string, specs []PolicySpec) error {
	if name == "" {
		return nil
	}
	var named []string
	for _, spec := range specs {
		if !spec.Singleton {
			named = append(named, spec.Name)
		}
	}
	if len(named) > 1 {
		return errors.Errorf("--name %s would apply to %s; run them separately",
			name, strings.Join(named, " and "))
	}
	return nil
}

// newGate picks the gate implied by the answer flags.
func newGate(cfg Config, interactive Gate) Gate {
	switch {
	case cfg.Yes || cfg.No:
		return fixedGate{assume: cfg.Yes, selection: cfg.Select}
	case cfg.Select != "":
		return presetGate{Gate: interactive, selection: cfg.Select}
	}
	return interactive
}
