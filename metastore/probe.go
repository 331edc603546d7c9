package metastore

import (
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/zkfleet/zkfleet/common"
)

// RuokProbe asks every server "ruok" and treats "imok" as ready. The
// servers must whitelist the ruok four-letter word.
type RuokProbe struct {
	Timeout time.Duration
}

var _ common.Prober = RuokProbe{}

func (p RuokProbe) Ready(addresses []string) []bool {
	return zk.FLWRuok(addresses, p.Timeout)
}
