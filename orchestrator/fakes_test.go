package orchestrator_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/zkfleet/zkfleet/common"
)

// call is one command received by a fake channel.
type call struct {
	Host       string
	Command    string
	ID         int
	Ensemble   string
	Credential string
	Arg        string
}

// fakeConnector hands out recording channels. Hosts in unreachable fail
// to connect; failing[host] names a command that fails on that host.
type fakeConnector struct {
	mu          sync.Mutex
	calls       []call
	unreachable map[string]bool
	failing     map[string]string
	// gate, when set, blocks Connect until it is closed
	gate    chan struct{}
	entered chan struct{}
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		unreachable: map[string]bool{},
		failing:     map[string]string{},
	}
}

func (f *fakeConnector) Connect(ctx context.Context, record common.ServerRecord) (common.Channel, error) {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Host: record.Host, Command: "connect", Credential: record.Secret})
	if f.unreachable[record.Host] {
		return nil, fmt.Errorf("%w: %s: no route to host", common.ErrConnectFailed, record.Host)
	}
	return &fakeChannel{connector: f, host: record.Host}, nil
}

func (f *fakeConnector) commands(command string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []call
	for _, c := range f.calls {
		if c.Command == command {
			matched = append(matched, c)
		}
	}
	return matched
}

func (f *fakeConnector) sequence() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var seq []string
	for _, c := range f.calls {
		seq = append(seq, c.Host+" "+c.Command)
	}
	return seq
}

type fakeChannel struct {
	connector *fakeConnector
	host      string
}

func (ch *fakeChannel) do(c call) error {
	f := ch.connector
	f.mu.Lock()
	defer f.mu.Unlock()
	c.Host = ch.host
	f.calls = append(f.calls, c)
	if f.failing[ch.host] == c.Command {
		return fmt.Errorf("%w: %s exited with status 1", common.ErrRemoteCommandFailed, c.Command)
	}
	return nil
}

func (ch *fakeChannel) InstallMonitor() error {
	return ch.do(call{Command: "InstallMonitor"})
}

func (ch *fakeChannel) GrantRemoteAccess(mode string) error {
	return ch.do(call{Command: "GrantRemoteAccess", Arg: mode})
}

func (ch *fakeChannel) SendFile(localPath, remotePath string) error {
	return ch.do(call{Command: "SendFile", Arg: remotePath})
}

func (ch *fakeChannel) StartDaemon(id int, ensemble, credential string) error {
	return ch.do(call{Command: "StartDaemon", ID: id, Ensemble: ensemble, Credential: credential})
}

func (ch *fakeChannel) StartMonitorAgent(id int, ensemble, credential string) error {
	return ch.do(call{Command: "StartMonitorAgent", ID: id, Ensemble: ensemble, Credential: credential})
}

func (ch *fakeChannel) StopDaemon(id int, ensemble, credential string) error {
	return ch.do(call{Command: "StopDaemon", ID: id, Ensemble: ensemble, Credential: credential})
}

func (ch *fakeChannel) Close() error {
	return nil
}

// fakeProber reports every address in down as not ready.
type fakeProber struct {
	mu     sync.Mutex
	down   map[string]bool
	probed [][]string
}

func (p *fakeProber) Ready(addresses []string) []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = append(p.probed, append([]string{}, addresses...))
	ready := make([]bool, len(addresses))
	for i, addr := range addresses {
		ready[i] = !p.down[addr]
	}
	return ready
}

// fakeDialer opens store and remembers the connection strings it saw.
type fakeDialer struct {
	store     common.MetadataStore
	err       error
	ensembles []string
}

func (d *fakeDialer) Open(ensemble string) (common.MetadataStore, error) {
	d.ensembles = append(d.ensembles, ensemble)
	if d.err != nil {
		return nil, d.err
	}
	return d.store, nil
}
