// Package orchestrator sequences install, start, stop and uninstall of a
// coordination ensemble across the nodes of a server catalog, and keeps
// the ensemble's session metadata in step.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/zkfleet/zkfleet/common"
	"github.com/zkfleet/zkfleet/ensemble"
	"github.com/zkfleet/zkfleet/session"
	"go.uber.org/atomic"
)

const (
	OpServerInstall   = "ServerInstall"
	OpClientInstall   = "ClientInstall"
	OpServerStart     = "ServerStart"
	OpServerStop      = "ServerStop"
	OpServerUninstall = "ServerUninstall"
)

// Step names recorded in reports.
const (
	StepConnect           = "connect"
	StepInstallMonitor    = "install monitor"
	StepGrantRemoteAccess = "grant remote access"
	StepRegister          = "register"
	StepSendConfig        = "send configuration"
	StepStartDaemon       = "start daemon"
	StepStartAgent        = "start monitor agent"
	StepStopDaemon        = "stop daemon"
	StepForget            = "forget"
)

type Options struct {
	Catalog   common.Catalog
	Connector common.Connector
	Stores    common.StoreDialer
	Prober    common.Prober

	// Artifact is the local configuration file; RemoteConfigPath is where
	// each node expects it.
	Artifact         ensemble.Artifact
	RemoteConfigPath string

	RemoteAccessMode string
	// AgentCredential, when set, replaces each node's own secret as the
	// credential handed to its daemon and monitor agent.
	AgentCredential string

	Polling          session.Polling
	OperationTimeout time.Duration
	// ForgetOnUninstall removes uninstalled nodes from the catalog.
	ForgetOnUninstall bool

	Logger *log.Logger
	Now    func() time.Time
}

// Orchestrator drives one operation at a time; a second concurrent call
// fails with common.ErrBusy.
type Orchestrator struct {
	Options
	busy   *atomic.Bool
	logger *log.Logger
}

func New(opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[Orchestrator] ", log.LstdFlags)
	}
	return &Orchestrator{
		Options: opts,
		busy:    atomic.NewBool(false),
		logger:  logger,
	}
}

type node struct {
	common.ServerRecord
	ID int
}

type step struct {
	name string
	run  func(ch common.Channel) error
}

// begin claims the orchestrator and applies the operation deadline.
func (o *Orchestrator) begin(ctx context.Context, operation string) (context.Context, func(), *Report, error) {
	if !o.busy.CAS(false, true) {
		return nil, nil, nil, common.ErrBusy
	}
	cancel := func() {}
	if o.OperationTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.OperationTimeout)
	}
	report := newReport(operation)
	o.logger.Printf("%s %v: begin", operation, report.ID)
	return ctx, func() {
		cancel()
		o.logger.Printf("%s %v: %v", operation, report.ID, report.Status())
		o.busy.Store(false)
	}, report, nil
}

// onNode connects to n and runs steps in order, stopping at the first
// failure. Every attempted step is recorded. It reports whether all
// steps succeeded.
func (o *Orchestrator) onNode(ctx context.Context, report *Report, n node, steps ...step) bool {
	if err := ctx.Err(); err != nil {
		report.record(n.Host, n.ID, StepConnect, err)
		return false
	}
	ch, err := o.Connector.Connect(ctx, n.ServerRecord)
	if err != nil {
		if !errors.Is(err, common.ErrConnectFailed) {
			err = fmt.Errorf("%w: %v", common.ErrConnectFailed, err)
		}
		report.record(n.Host, n.ID, StepConnect, err)
		return false
	}
	defer ch.Close()
	report.record(n.Host, n.ID, StepConnect, nil)

	for _, s := range steps {
		err := s.run(ch)
		if err != nil && !errors.Is(err, common.ErrRemoteCommandFailed) {
			err = fmt.Errorf("%w: %v", common.ErrRemoteCommandFailed, err)
		}
		report.record(n.Host, n.ID, s.name, err)
		if err != nil {
			o.logger.Printf("%s: %s failed: %v", n.Host, s.name, err)
			return false
		}
	}
	return true
}

// load reads the catalog once; ids are catalog positions for the rest of
// the operation.
func (o *Orchestrator) load() ([]node, []string, error) {
	records, err := o.Catalog.List()
	if err != nil {
		return nil, nil, fmt.Errorf("reading catalog: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: no servers installed", common.ErrConfiguration)
	}
	nodes := make([]node, len(records))
	hosts := make([]string, len(records))
	for i, record := range records {
		nodes[i] = node{ServerRecord: record, ID: i + 1}
		hosts[i] = record.Host
	}
	return nodes, hosts, nil
}

func (o *Orchestrator) credential(n node) string {
	if o.AgentCredential != "" {
		return o.AgentCredential
	}
	return n.Secret
}

func validate(record common.ServerRecord) error {
	if record.Host == "" || record.User == "" {
		return fmt.Errorf("%w: host and user are required", common.ErrConfiguration)
	}
	return nil
}

// Servers returns the catalog in ensemble-id order.
func (o *Orchestrator) Servers() ([]common.ServerRecord, error) {
	return o.Catalog.List()
}

// Status reads the session metadata of the cataloged ensemble.
func (o *Orchestrator) Status(ctx context.Context) (session.State, error) {
	_, hosts, err := o.load()
	if err != nil {
		return session.State{}, err
	}
	store, err := o.Stores.Open(ensemble.ConnectionString(hosts))
	if err != nil {
		return session.State{}, err
	}
	defer store.Close()
	return session.Read(store)
}
