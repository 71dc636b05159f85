package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/alexflint/go-arg"
	_ "github.com/konsorten/go-windows-terminal-sequences"
	"github.com/mattn/go-colorable"
	"github.com/pkg/errors"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, p, err := parseConfig(args)
	switch {
	case errors.Is(err, arg.ErrHelp):
		p.WriteHelp(os.Stdout)
		return exitOK
	case errors.Is(err, arg.ErrVersion):
		fmt.Println(cfg.Version())
		return exitOK
	case err != nil:
		if p != nil {
			p.WriteUsage(os.Stderr)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUsage
	}

	logger, err := newLogger(&cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUsage
	}
	log = logger

	catalog, err := newCatalog(builtinPolicies()...)
	if err != nil {
		log.Panic(err)
	}
	if cfg.PolicyFile != "" {
		extra, err := loadPolicies(cfg.PolicyFile)
		if err != nil {
			log.Error(err)
			return exitUsage
		}
		for _, spec := range extra {
			if err := catalog.add(spec); err != nil {
				log.Error(err)
				return exitUsage
			}
		}
	}
	if cfg.List {
		catalog.print(os.Stdout)
		return exitOK
	}
	specs, err := catalog.lookup(cfg.Policies)
	if err == nil {
		err = checkName(cfg.Name, specs)
	}
	if err != nil {
		log.Error(err)
		return exitUsage
	}

	terminal := newTerminalGate(os.Stdin, os.Stdout)
	if cfg.Credentials == "" {
		if cfg.Credentials, err = terminal.ask("Enter path to CSV file with fabric credentials:"); err != nil {
			log.Error(err)
			return exitUsage
		}
	}
	targets, err := loadCredentials(cfg.Credentials)
	if err == nil {
		err = promptPasswords(targets)
	}
	if err != nil {
		log.Error(err)
		return exitUsage
	}

	if cfg.Insecure {
		log.Warn("TLS certificate verification is disabled.")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := newClient(time.Duration(cfg.RequestTimeout)*time.Second, cfg.Insecure)
	orchestrator := newOrchestrator(client, newGate(cfg, terminal), cfg.Name, cfg.Workers)
	out := colorable.NewColorableStdout()
	var reports []FleetReport
	for _, spec := range specs {
		log.WithField("controllers", len(targets)).Info(fmt.Sprintf("Reconciling %s", spec.Name))
		report := orchestrator.Run(ctx, targets, spec)
		report.render(out)
		reports = append(reports, report)
	}
	log.Info(fmt.Sprintf("Done: %s.", summary(reports)))

	if cfg.Report != "" {
		if err := writeReport(cfg.Report, reports); err != nil {
			log.Error(err)
			return exitFailure
		}
	}
	return exitCode(reports)
}
