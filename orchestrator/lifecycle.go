package orchestrator

import (
	"context"
	"fmt"

	"github.com/zkfleet/zkfleet/common"
	"github.com/zkfleet/zkfleet/ensemble"
	"github.com/zkfleet/zkfleet/session"
)

// InstallServerNode installs the monitoring software on a new server and
// registers it in the catalog. A node that cannot be connected to is
// never registered. Failures after the connection are reported but do
// not undo the registration.
func (o *Orchestrator) InstallServerNode(ctx context.Context, record common.ServerRecord) (*Report, error) {
	if err := validate(record); err != nil {
		return nil, err
	}
	ctx, done, report, err := o.begin(ctx, OpServerInstall)
	if err != nil {
		return nil, err
	}
	defer done()

	n := node{ServerRecord: record}
	o.onNode(ctx, report, n,
		step{StepInstallMonitor, func(ch common.Channel) error { return ch.InstallMonitor() }},
		step{StepGrantRemoteAccess, func(ch common.Channel) error { return ch.GrantRemoteAccess(o.RemoteAccessMode) }},
	)
	if connected(report, record.Host) {
		err := o.Catalog.Add(record)
		report.record(record.Host, 0, StepRegister, err)
	}
	return report, report.Err()
}

// InstallClientNode installs the monitoring software on a client. Clients
// are not cataloged.
func (o *Orchestrator) InstallClientNode(ctx context.Context, record common.ServerRecord) (*Report, error) {
	if err := validate(record); err != nil {
		return nil, err
	}
	ctx, done, report, err := o.begin(ctx, OpClientInstall)
	if err != nil {
		return nil, err
	}
	defer done()

	o.onNode(ctx, report, node{ServerRecord: record},
		step{StepInstallMonitor, func(ch common.Channel) error { return ch.InstallMonitor() }},
	)
	return report, report.Err()
}

func connected(report *Report, host string) bool {
	for _, outcome := range report.Steps(host) {
		if outcome.Step == StepConnect {
			return outcome.Err == nil
		}
	}
	return false
}

// StartEnsemble writes the ensemble configuration, pushes it to every
// node and starts the coordination daemons, waits for them to serve,
// starts the monitor agents and finally creates the session metadata.
// Nodes are handled one at a time in catalog order; a failing node does
// not stop the others.
func (o *Orchestrator) StartEnsemble(ctx context.Context) (*Report, error) {
	ctx, done, report, err := o.begin(ctx, OpServerStart)
	if err != nil {
		return nil, err
	}
	defer done()

	nodes, hosts, err := o.load()
	if err != nil {
		report.fail(err)
		return report, report.Err()
	}
	connection := ensemble.ConnectionString(hosts)
	if err := o.Artifact.Write(hosts); err != nil {
		report.fail(fmt.Errorf("writing %s: %w", o.Artifact.Path, err))
		return report, report.Err()
	}

	var started []node
	for _, n := range nodes {
		ok := o.onNode(ctx, report, n,
			step{StepSendConfig, func(ch common.Channel) error {
				return ch.SendFile(o.Artifact.Path, o.RemoteConfigPath)
			}},
			step{StepStartDaemon, func(ch common.Channel) error {
				return ch.StartDaemon(n.ID, connection, o.credential(n))
			}},
		)
		if ok {
			o.logger.Printf("%s started as server.%d", n.Host, n.ID)
			started = append(started, n)
		}
	}
	if len(started) == 0 {
		report.fail(fmt.Errorf("%w: no server started", common.ErrRemoteCommandFailed))
		return report, report.Err()
	}

	if o.Prober != nil {
		startedHosts := make([]string, len(started))
		for i, n := range started {
			startedHosts[i] = n.Host
		}
		if err := session.AwaitReady(ctx, o.Prober, ensemble.Addresses(startedHosts), o.Polling); err != nil {
			report.fail(err)
			return report, report.Err()
		}
	}

	for _, n := range started {
		o.onNode(ctx, report, n,
			step{StepStartAgent, func(ch common.Channel) error {
				return ch.StartMonitorAgent(n.ID, connection, o.credential(n))
			}},
		)
	}

	store, err := o.Stores.Open(connection)
	if err != nil {
		report.fail(err)
		return report, report.Err()
	}
	defer store.Close()
	if err := session.Initialize(store, len(nodes), o.Now()); err != nil {
		report.fail(err)
	}
	return report, report.Err()
}

// StopEnsemble clears the session and stops the daemon on every node.
func (o *Orchestrator) StopEnsemble(ctx context.Context) (*Report, error) {
	return o.teardown(ctx, OpServerStop, false)
}

// UninstallEnsemble decommissions the ensemble. It runs the stop sequence
// and, when ForgetOnUninstall is set, removes every stopped node from the
// catalog.
func (o *Orchestrator) UninstallEnsemble(ctx context.Context) (*Report, error) {
	return o.teardown(ctx, OpServerUninstall, o.ForgetOnUninstall)
}

func (o *Orchestrator) teardown(ctx context.Context, operation string, forget bool) (*Report, error) {
	ctx, done, report, err := o.begin(ctx, operation)
	if err != nil {
		return nil, err
	}
	defer done()

	nodes, hosts, err := o.load()
	if err != nil {
		report.fail(err)
		return report, report.Err()
	}
	connection := ensemble.ConnectionString(hosts)

	// The session lives on the ensemble itself, so it is cleared while the
	// daemons still serve. A store failure does not prevent the stop.
	if err := o.clearSession(connection); err != nil {
		report.fail(err)
	}

	var stopped []node
	for _, n := range nodes {
		ok := o.onNode(ctx, report, n,
			step{StepStopDaemon, func(ch common.Channel) error {
				return ch.StopDaemon(n.ID, connection, o.credential(n))
			}},
		)
		if ok {
			stopped = append(stopped, n)
		}
	}

	if forget {
		for _, n := range stopped {
			report.record(n.Host, n.ID, StepForget, o.Catalog.Remove(n.Host))
		}
	}
	return report, report.Err()
}

func (o *Orchestrator) clearSession(connection string) error {
	store, err := o.Stores.Open(connection)
	if err != nil {
		return err
	}
	defer store.Close()
	return session.Clear(store)
}
