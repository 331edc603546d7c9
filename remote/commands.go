package remote

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Commands holds the fixed lifecycle commands run on every node. Each is
// a text/template rendered with the node's parameters (see commandData).
// Values that reach a shell unquoted must go through shellquote.
type Commands struct {
	InstallMonitor    string `yaml:"installMonitor"`
	GrantRemoteAccess string `yaml:"grantRemoteAccess"`
	StartDaemon       string `yaml:"startDaemon"`
	StartMonitorAgent string `yaml:"startMonitorAgent"`
	StopDaemon        string `yaml:"stopDaemon"`
}

const zookeeperHome = "monitor/apache-zookeeper-3.6.1"

// DefaultCommands installs ZooKeeper 3.6.1 under ~/monitor and drives it
// with zkServer.sh.
func DefaultCommands() Commands {
	return Commands{
		InstallMonitor: `mkdir -p monitor && cd monitor && (test -d apache-zookeeper-3.6.1 || ` +
			`(curl -fsSL https://archive.apache.org/dist/zookeeper/zookeeper-3.6.1/apache-zookeeper-3.6.1-bin.tar.gz | tar -xz ` +
			`&& mv apache-zookeeper-3.6.1-bin apache-zookeeper-3.6.1))`,
		GrantRemoteAccess: `echo {{shellquote .Secret}} | sudo -S ` +
			`sed -i 's/^#\?PermitRootLogin.*/PermitRootLogin {{.Mode}}/' /etc/ssh/sshd_config && ` +
			`echo {{shellquote .Secret}} | sudo -S systemctl reload ssh`,
		StartDaemon: `mkdir -p /tmp/zookeeper && echo {{.ID}} > /tmp/zookeeper/myid && ` +
			zookeeperHome + `/bin/zkServer.sh start`,
		StartMonitorAgent: `cd monitor && nohup ./agent --id {{.ID}} --ensemble {{shellquote .Ensemble}} ` +
			`--credential {{shellquote .Credential}} > agent.log 2>&1 < /dev/null &`,
		StopDaemon: zookeeperHome + `/bin/zkServer.sh stop`,
	}
}

// DefaultConfigPath is where nodes expect the ensemble configuration.
const DefaultConfigPath = zookeeperHome + "/conf/zoo.cfg"

type commandData struct {
	ID         int
	Ensemble   string
	Credential string
	Mode       string
	User       string
	Secret     string
}

type templates map[string]*template.Template

// shellquote renders s as a single POSIX shell word.
func shellquote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var funcs = template.FuncMap{"shellquote": shellquote}

const (
	stepInstallMonitor    = "install monitor"
	stepGrantRemoteAccess = "grant remote access"
	stepStartDaemon       = "start daemon"
	stepStartMonitorAgent = "start monitor agent"
	stepStopDaemon        = "stop daemon"
)

func (c Commands) compile() (templates, error) {
	sources := map[string]string{
		stepInstallMonitor:    c.InstallMonitor,
		stepGrantRemoteAccess: c.GrantRemoteAccess,
		stepStartDaemon:       c.StartDaemon,
		stepStartMonitorAgent: c.StartMonitorAgent,
		stepStopDaemon:        c.StopDaemon,
	}
	compiled := make(templates, len(sources))
	for step, source := range sources {
		if source == "" {
			return nil, fmt.Errorf("no command configured for %q", step)
		}
		tmpl, err := template.New(step).Funcs(funcs).Option("missingkey=error").Parse(source)
		if err != nil {
			return nil, fmt.Errorf("command for %q: %w", step, err)
		}
		compiled[step] = tmpl
	}
	return compiled, nil
}

func (t templates) render(step string, data commandData) (string, error) {
	var b bytes.Buffer
	if err := t[step].Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
