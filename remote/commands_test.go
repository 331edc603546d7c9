package remote

import (
	"context"
	"errors"
	"net"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zkfleet/zkfleet/common"
)

func TestDefaultCommands_Render(t *testing.T) {
	compiled, err := DefaultCommands().compile()
	require.NoError(t, err)

	cmd, err := compiled.render(stepStartDaemon, commandData{ID: 2, Ensemble: "h1:2181,h2:2181"})
	assert.NoError(t, err)
	assert.Equal(t, "mkdir -p /tmp/zookeeper && echo 2 > /tmp/zookeeper/myid && monitor/apache-zookeeper-3.6.1/bin/zkServer.sh start", cmd)

	cmd, err = compiled.render(stepStartMonitorAgent, commandData{ID: 1, Ensemble: "h1:2181", Credential: "kayua"})
	assert.NoError(t, err)
	assert.Contains(t, cmd, "--id 1 --ensemble 'h1:2181' --credential 'kayua'")

	cmd, err = compiled.render(stepGrantRemoteAccess, commandData{Mode: "yes", Secret: "pw"})
	assert.NoError(t, err)
	assert.Contains(t, cmd, "echo 'pw' | sudo -S")
	assert.Contains(t, cmd, "PermitRootLogin yes")
}

func TestDefaultCommands_QuoteSecrets(t *testing.T) {
	compiled, err := DefaultCommands().compile()
	require.NoError(t, err)
	secret := "pa'ss; touch /tmp/pwned; echo '"
	quoted := `'pa'\''ss; touch /tmp/pwned; echo '\'''`

	cmd, err := compiled.render(stepGrantRemoteAccess, commandData{Mode: "yes", Secret: secret})
	require.NoError(t, err)
	assert.Contains(t, cmd, "echo "+quoted+" | sudo -S sed")
	assert.Contains(t, cmd, "echo "+quoted+" | sudo -S systemctl reload ssh")
	assert.NotContains(t, cmd, "echo 'pa'ss")

	cmd, err = compiled.render(stepStartMonitorAgent, commandData{ID: 1, Ensemble: "h1:2181", Credential: secret})
	require.NoError(t, err)
	assert.Contains(t, cmd, "--credential "+quoted+" > agent.log")
}

func TestShellquote(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no sh available")
	}
	for _, value := range []string{
		"",
		"plain",
		"with space",
		"pa'ss; touch /tmp/pwned; echo '",
		`$(id) "double" \back`,
		"''",
	} {
		out, err := exec.Command(sh, "-c", "printf %s "+shellquote(value)).Output()
		require.NoError(t, err, value)
		assert.Equal(t, value, string(out))
	}
}

func TestCommands_CompileErrors(t *testing.T) {
	commands := DefaultCommands()
	commands.StopDaemon = ""
	_, err := commands.compile()
	assert.Error(t, err)

	commands = DefaultCommands()
	commands.StartDaemon = "echo {{.ID"
	_, err = commands.compile()
	assert.Error(t, err)

	commands = DefaultCommands()
	commands.StartDaemon = "echo {{.Missing}}"
	compiled, err := commands.compile()
	require.NoError(t, err)
	_, err = compiled.render(stepStartDaemon, commandData{})
	assert.Error(t, err)
}

func TestNewConnector_BadConfiguration(t *testing.T) {
	_, err := NewConnector(Options{})
	assert.True(t, errors.Is(err, common.ErrConfiguration))

	_, err = NewConnector(Options{Commands: DefaultCommands(), KnownHostsFile: "/nonexistent/known_hosts"})
	assert.True(t, errors.Is(err, common.ErrConfiguration))
}

func TestConnect_Unreachable(t *testing.T) {
	// grab a free port and close it so nothing listens there
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	connector, err := NewConnector(Options{
		Port:       port,
		Timeout:    time.Second,
		Retries:    2,
		RetryDelay: time.Millisecond,
		Commands:   DefaultCommands(),
	})
	require.NoError(t, err)

	_, err = connector.Connect(context.Background(), common.ServerRecord{Host: "127.0.0.1", User: "u", Secret: "p"})
	assert.ErrorIs(t, err, common.ErrConnectFailed)
}
