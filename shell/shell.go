// Package shell implements the interactive command shell driving an
// ensemble orchestrator.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/zkfleet/zkfleet/common"
	"github.com/zkfleet/zkfleet/orchestrator"
	"github.com/zkfleet/zkfleet/session"
)

// Operations is the part of the orchestrator the shell drives.
type Operations interface {
	InstallServerNode(ctx context.Context, record common.ServerRecord) (*orchestrator.Report, error)
	InstallClientNode(ctx context.Context, record common.ServerRecord) (*orchestrator.Report, error)
	StartEnsemble(ctx context.Context) (*orchestrator.Report, error)
	StopEnsemble(ctx context.Context) (*orchestrator.Report, error)
	UninstallEnsemble(ctx context.Context) (*orchestrator.Report, error)
	Servers() ([]common.ServerRecord, error)
	Status(ctx context.Context) (session.State, error)
}

var _ Operations = &orchestrator.Orchestrator{}

const prompt = "Command >> "

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Available commands: ")
	fmt.Fprintln(out, "\t ServerInstall <host> <user> <password>")
	fmt.Fprintln(out, "\t ClientInstall <host> <user> <password>")
	fmt.Fprintln(out, "\t ServerStart")
	fmt.Fprintln(out, "\t ServerStop")
	fmt.Fprintln(out, "\t ServerUninstall")
	fmt.Fprintln(out, "\t ServerList")
	fmt.Fprintln(out, "\t Status")
	fmt.Fprintln(out, "\t help")
	fmt.Fprintln(out, "\t exit")
}

// Run reads commands from in until "exit" or end of input, writing all
// output to out. Command failures are printed, not returned.
func Run(ctx context.Context, ops Operations, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "\n<<<< Coordination Ensemble Manager >>>>\n")
	printHelp(out)
	fmt.Fprint(out, "Saved Servers:")
	if servers, err := ops.Servers(); err != nil {
		fmt.Fprintf(out, " (unavailable: %v)", err)
	} else {
		for _, server := range servers {
			fmt.Fprint(out, " ", server.Host)
		}
	}
	fmt.Fprintf(out, "\n\n")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return nil
		}
		Execute(ctx, ops, args, out)
	}
}

// Execute runs one command line already split into fields.
func Execute(ctx context.Context, ops Operations, args []string, out io.Writer) {
	switch args[0] {
	case "ServerInstall", "ClientInstall":
		if len(args) != 4 {
			fmt.Fprintf(out, "usage: %s <host> <user> <password>\n", args[0])
			return
		}
		record := common.ServerRecord{Host: args[1], User: args[2], Secret: args[3]}
		fmt.Fprintf(out, "\n     Please wait: Installing %s\n", record.Host)
		var report *orchestrator.Report
		var err error
		if args[0] == "ServerInstall" {
			report, err = ops.InstallServerNode(ctx, record)
		} else {
			report, err = ops.InstallClientNode(ctx, record)
		}
		if err != nil {
			fmt.Fprintf(out, "\n     Installation Error\n")
		} else {
			fmt.Fprintf(out, "\n     Successful Installation\n")
		}
		printReport(out, report, err)
	case "ServerStart":
		fmt.Fprintf(out, "\n     Starting Servers: \n\n")
		report, err := ops.StartEnsemble(ctx)
		printNodes(out, report, orchestrator.StepStartDaemon, "Started")
		printReport(out, report, err)
	case "ServerStop":
		fmt.Fprintf(out, "\n     Stopping Servers: \n\n")
		report, err := ops.StopEnsemble(ctx)
		printNodes(out, report, orchestrator.StepStopDaemon, "Stopped")
		printReport(out, report, err)
	case "ServerUninstall":
		fmt.Fprintf(out, "\n     Uninstalling Servers: \n\n")
		report, err := ops.UninstallEnsemble(ctx)
		printNodes(out, report, orchestrator.StepStopDaemon, "Uninstalled")
		printReport(out, report, err)
	case "ServerList":
		servers, err := ops.Servers()
		if err != nil {
			fmt.Fprintf(out, "FAILED: %v\n", err)
			return
		}
		for i, server := range servers {
			fmt.Fprintf(out, "     server.%d  %s@%s\n", i+1, server.User, server.Host)
		}
	case "Status":
		state, err := ops.Status(ctx)
		if err != nil {
			fmt.Fprintf(out, "FAILED: %v\n", err)
			return
		}
		printState(out, state)
	case "help":
		printHelp(out)
	default:
		fmt.Fprintln(out, "Incorrect command")
	}
}

// printNodes prints one line per node that completed step.
func printNodes(out io.Writer, report *orchestrator.Report, step, verb string) {
	if report == nil {
		return
	}
	for _, outcome := range report.Outcomes {
		if outcome.Step == step && outcome.Err == nil {
			fmt.Fprintf(out, "         - %s %s\n", outcome.Host, verb)
		}
	}
}

func printReport(out io.Writer, report *orchestrator.Report, err error) {
	if report == nil {
		if err != nil {
			fmt.Fprintf(out, "FAILED: %v\n\n", err)
		}
		return
	}
	switch report.Status() {
	case orchestrator.Success:
		fmt.Fprintf(out, "\nOK\n\n")
	case orchestrator.PartialFailure:
		fmt.Fprintf(out, "\nPARTIAL FAILURE: %s\n", strings.Join(report.FailedHosts(), " "))
		for _, e := range failures(report) {
			fmt.Fprintf(out, "     %v\n", e)
		}
		fmt.Fprintln(out)
	default:
		fmt.Fprintf(out, "\nFAILED: %v\n\n", err)
	}
}

func failures(report *orchestrator.Report) []error {
	var errs []error
	for _, outcome := range report.Outcomes {
		if outcome.Err != nil {
			errs = append(errs, &common.NodeError{Host: outcome.Host, ID: outcome.ID, Step: outcome.Step, Err: outcome.Err})
		}
	}
	return errs
}

func printState(out io.Writer, state session.State) {
	if !state.Active {
		fmt.Fprintln(out, "     no active session")
		return
	}
	fmt.Fprintf(out, "     started:  %s\n", state.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "     servers:  %d\n", state.Servers)
	fmt.Fprintf(out, "     clients:  %d\n", state.Clients)
	fmt.Fprintf(out, "     synced:   %t\n", state.SignalSync)
	for i, ready := range state.Ready {
		fmt.Fprintf(out, "     server.%d ready: %t\n", i+1, ready)
	}
}
