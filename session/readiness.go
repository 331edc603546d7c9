package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zkfleet/zkfleet/common"
)

// Polling bounds how long AwaitReady waits for an ensemble to converge.
// A zero MaxAttempts or Timeout leaves that bound unset.
type Polling struct {
	Interval    time.Duration
	Timeout     time.Duration
	MaxAttempts int
}

// AwaitReady probes addresses until all of them report ready. Servers
// that already answered are not probed again.
func AwaitReady(ctx context.Context, probe common.Prober, addresses []string, polling Polling) error {
	if polling.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, polling.Timeout)
		defer cancel()
	}

	pending := addresses
	for attempt := 1; ; attempt++ {
		ready := probe.Ready(pending)
		var waiting []string
		for i, addr := range pending {
			if i >= len(ready) || !ready[i] {
				waiting = append(waiting, addr)
			}
		}
		pending = waiting
		if len(pending) == 0 {
			return nil
		}
		if polling.MaxAttempts > 0 && attempt >= polling.MaxAttempts {
			return notReady(pending, attempt)
		}

		timer := time.NewTimer(polling.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return notReady(pending, attempt)
		case <-timer.C:
		}
	}
}

func notReady(pending []string, attempts int) error {
	return fmt.Errorf("%w: %s not ready after %d attempts", common.ErrConvergenceTimeout, strings.Join(pending, ", "), attempts)
}
