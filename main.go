package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/zkfleet/zkfleet/common"
	"github.com/zkfleet/zkfleet/config"
	"github.com/zkfleet/zkfleet/ensemble"
	"github.com/zkfleet/zkfleet/metastore"
	"github.com/zkfleet/zkfleet/orchestrator"
	"github.com/zkfleet/zkfleet/persistent"
	"github.com/zkfleet/zkfleet/remote"
	"github.com/zkfleet/zkfleet/session"
	"github.com/zkfleet/zkfleet/shell"
	"go.uber.org/multierr"
)

const (
	exitOK      = 0
	exitPartial = 1
	exitFailure = 2
)

func openCatalog(cfg config.Config) (common.Catalog, error) {
	if cfg.Catalog.Backend == config.CatalogBolt {
		return persistent.NewBoltCatalog(cfg.Catalog.Path)
	}
	return persistent.NewLogCatalog(cfg.Catalog.Path)
}

func newOrchestrator(cfg config.Config, catalog common.Catalog) (*orchestrator.Orchestrator, error) {
	connector, err := remote.NewConnector(remote.Options{
		Port:           cfg.SSH.Port,
		Timeout:        cfg.SSH.TimeoutDuration(),
		Retries:        cfg.SSH.Retries,
		RetryDelay:     cfg.SSH.RetryDelayDuration(),
		KnownHostsFile: cfg.SSH.KnownHostsFile,
		Commands:       cfg.Commands,
		Logger:         log.New(os.Stderr, "[Remote] ", log.LstdFlags),
	})
	if err != nil {
		return nil, err
	}
	return orchestrator.New(orchestrator.Options{
		Catalog:   catalog,
		Connector: connector,
		Stores: metastore.ZKDialer{
			SessionTimeout: cfg.Store.SessionTimeoutDuration(),
			ConnectTimeout: cfg.Store.ConnectTimeoutDuration(),
			Logger:         log.New(os.Stderr, "[ZooKeeper] ", log.LstdFlags),
		},
		Prober: metastore.RuokProbe{Timeout: cfg.Readiness.ProbeTimeoutDuration()},
		Artifact: ensemble.Artifact{
			Path: cfg.Artifact.Path,
			Base: cfg.Artifact.Base,
		},
		RemoteConfigPath: cfg.Artifact.RemotePath,
		RemoteAccessMode: cfg.RemoteAccessMode,
		AgentCredential:  cfg.AgentCredential,
		Polling: session.Polling{
			Interval:    cfg.Readiness.IntervalDuration(),
			Timeout:     cfg.Readiness.TimeoutDuration(),
			MaxAttempts: cfg.Readiness.MaxAttempts,
		},
		OperationTimeout:  cfg.OperationTimeoutDuration(),
		ForgetOnUninstall: cfg.ForgetOnUninstall,
		Logger:            log.New(os.Stderr, "[Orchestrator] ", log.LstdFlags),
	}), nil
}

// withOrchestrator parses the common flags, builds the orchestrator and
// hands it to fn. fn returns the process exit code.
func withOrchestrator(name string, args []string, fn func(ctx context.Context, o *orchestrator.Orchestrator) int, extra func(*flag.FlagSet)) int {
	flagset := flag.NewFlagSet(name, flag.ExitOnError)
	configFile := flagset.String("config", "", "YAML configuration file (defaults apply when omitted)")
	if extra != nil {
		extra(flagset)
	}
	if err := flagset.Parse(args); err != nil {
		fmt.Println(err)
		return exitFailure
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Println(err)
		return exitFailure
	}
	catalog, err := openCatalog(cfg)
	if err != nil {
		fmt.Println(err)
		return exitFailure
	}
	o, err := newOrchestrator(cfg, catalog)
	if err != nil {
		fmt.Println(multierr.Combine(err, catalog.Close()))
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	code := fn(ctx, o)
	if err := catalog.Close(); err != nil {
		fmt.Println(err)
		return exitFailure
	}
	return code
}

func exitCode(report *orchestrator.Report, err error) int {
	switch {
	case report == nil && err != nil:
		fmt.Println(err)
		return exitFailure
	case report == nil:
		return exitOK
	}
	for _, outcome := range report.Outcomes {
		status := "ok"
		if outcome.Err != nil {
			status = outcome.Err.Error()
		}
		fmt.Printf("%-20s %-20s %s\n", outcome.Host, outcome.Step, status)
	}
	fmt.Printf("%s %v: %v\n", report.Operation, report.ID, report.Status())
	switch report.Status() {
	case orchestrator.Success:
		return exitOK
	case orchestrator.PartialFailure:
		return exitPartial
	default:
		fmt.Println(report.Err())
		return exitFailure
	}
}

func runShell(args []string) int {
	return withOrchestrator("shell", args, func(ctx context.Context, o *orchestrator.Orchestrator) int {
		if err := shell.Run(ctx, o, os.Stdin, os.Stdout); err != nil {
			fmt.Println(err)
			return exitFailure
		}
		return exitOK
	}, nil)
}

func runInstall(name string, server bool, args []string) int {
	var host, user, secret string
	return withOrchestrator(name, args, func(ctx context.Context, o *orchestrator.Orchestrator) int {
		record := common.ServerRecord{Host: host, User: user, Secret: secret}
		if server {
			return exitCode(o.InstallServerNode(ctx, record))
		}
		return exitCode(o.InstallClientNode(ctx, record))
	}, func(flagset *flag.FlagSet) {
		flagset.StringVar(&host, "host", "", "host name or address of the node")
		flagset.StringVar(&user, "user", "", "SSH user")
		flagset.StringVar(&secret, "password", "", "SSH password")
	})
}

func runLifecycle(name string, op func(*orchestrator.Orchestrator, context.Context) (*orchestrator.Report, error), args []string) int {
	return withOrchestrator(name, args, func(ctx context.Context, o *orchestrator.Orchestrator) int {
		return exitCode(op(o, ctx))
	}, nil)
}

func runList(args []string) int {
	return withOrchestrator("list", args, func(_ context.Context, o *orchestrator.Orchestrator) int {
		servers, err := o.Servers()
		if err != nil {
			fmt.Println(err)
			return exitFailure
		}
		for i, server := range servers {
			fmt.Printf("server.%d=%s@%s\n", i+1, server.User, server.Host)
		}
		return exitOK
	}, nil)
}

func runStatus(args []string) int {
	return withOrchestrator("status", args, func(ctx context.Context, o *orchestrator.Orchestrator) int {
		state, err := o.Status(ctx)
		if err != nil {
			fmt.Println(err)
			return exitFailure
		}
		if !state.Active {
			fmt.Println("no active session")
			return exitOK
		}
		fmt.Printf("started=%s servers=%d clients=%d sync=%t ready=%v\n",
			state.StartedAt.Format("2006-01-02T15:04:05Z07:00"), state.Servers, state.Clients, state.SignalSync, state.Ready)
		return exitOK
	}, nil)
}

func generateConfig(args []string) int {
	flagset := flag.NewFlagSet("config", flag.ExitOnError)
	var filepath, backend string
	flagset.StringVar(&filepath, "file", "zkfleet.yaml", "full path of config file to write to")
	flagset.StringVar(&backend, "catalog", config.CatalogLog, "catalog backend: log or bolt")
	if err := flagset.Parse(args); err != nil {
		fmt.Println(err)
		return exitFailure
	}
	cfg := config.Default()
	if backend == config.CatalogBolt {
		cfg.Catalog = config.Catalog{Backend: config.CatalogBolt, Path: "servers/catalog.db"}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Println(err)
		return exitFailure
	}
	if err := config.Write(filepath, cfg); err != nil {
		fmt.Println(err)
		return exitFailure
	}
	return exitOK
}

func main() {
	args := os.Args[1:]
	if len(args) < 1 {
		fmt.Printf("usage: %s config | shell | install-server | install-client | start | stop | uninstall | list | status ...\n", os.Args[0])
		os.Exit(exitFailure)
	}
	var code int
	switch args[0] {
	case "config":
		code = generateConfig(args[1:])
	case "shell":
		code = runShell(args[1:])
	case "install-server":
		code = runInstall("install-server", true, args[1:])
	case "install-client":
		code = runInstall("install-client", false, args[1:])
	case "start":
		code = runLifecycle("start", (*orchestrator.Orchestrator).StartEnsemble, args[1:])
	case "stop":
		code = runLifecycle("stop", (*orchestrator.Orchestrator).StopEnsemble, args[1:])
	case "uninstall":
		code = runLifecycle("uninstall", (*orchestrator.Orchestrator).UninstallEnsemble, args[1:])
	case "list":
		code = runList(args[1:])
	case "status":
		code = runStatus(args[1:])
	default:
		fmt.Printf("unknown sub-command: %s\n", args[0])
		code = exitFailure
	}
	os.Exit(code)
}
