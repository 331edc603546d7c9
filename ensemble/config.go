// Package ensemble renders the peer configuration shared by every node of
// a coordination ensemble.
package ensemble

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zkfleet/zkfleet/common"
)

const (
	ClientPort   = 2181
	PeerPort     = 2888
	ElectionPort = 3888
)

// DefaultBase holds the settings written ahead of the server lines.
const DefaultBase = `tickTime=2000
initLimit=10
syncLimit=5
dataDir=/tmp/zookeeper
clientPort=2181
4lw.commands.whitelist=ruok,stat
`

// Generate returns one blank separator line followed by a
// server.<id>=<host>:2888:3888 line per host, ids starting at 1.
func Generate(hosts []string) (string, error) {
	if len(hosts) == 0 {
		return "", fmt.Errorf("%w: no servers to configure", common.ErrConfiguration)
	}
	var b strings.Builder
	b.WriteString("\n")
	for i, host := range hosts {
		if host == "" {
			return "", fmt.Errorf("%w: server %d has an empty host", common.ErrConfiguration, i+1)
		}
		fmt.Fprintf(&b, "server.%d=%s:%d:%d\n", i+1, host, PeerPort, ElectionPort)
	}
	return b.String(), nil
}

// ConnectionString joins hosts as host1:2181,host2:2181,...
func ConnectionString(hosts []string) string {
	addrs := Addresses(hosts)
	return strings.Join(addrs, ",")
}

// Addresses returns the client address of every host.
func Addresses(hosts []string) []string {
	addrs := make([]string, len(hosts))
	for i, host := range hosts {
		addrs[i] = host + ":" + strconv.Itoa(ClientPort)
	}
	return addrs
}

// Artifact is the local configuration file pushed to every node.
type Artifact struct {
	Path string
	Base string
}

// Write replaces the artifact with Base followed by the generated server
// lines. Nothing is written if generation fails.
func (a Artifact) Write(hosts []string) error {
	servers, err := Generate(hosts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.Path), 0755); err != nil {
		return err
	}
	return os.WriteFile(a.Path, []byte(a.Base+servers), 0644)
}
