package orchestrator

import (
	"github.com/google/uuid"
	"github.com/zkfleet/zkfleet/common"
	"go.uber.org/multierr"
)

type Status int

const (
	Success Status = iota
	PartialFailure
	HardFailure
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case PartialFailure:
		return "partial failure"
	default:
		return "failure"
	}
}

// Outcome is the result of one step against one node. Err is nil on success.
type Outcome struct {
	Host string
	ID   int
	Step string
	Err  error
}

// Report collects the per-node outcomes of one operation. Fatal is set
// when the operation as a whole could not complete (empty catalog,
// store failure, convergence timeout, ...).
type Report struct {
	ID        uuid.UUID
	Operation string
	Outcomes  []Outcome
	Fatal     error
}

func newReport(operation string) *Report {
	return &Report{
		ID:        uuid.New(),
		Operation: operation,
	}
}

func (r *Report) record(host string, id int, step string, err error) {
	r.Outcomes = append(r.Outcomes, Outcome{Host: host, ID: id, Step: step, Err: err})
}

func (r *Report) fail(err error) {
	r.Fatal = multierr.Append(r.Fatal, err)
}

// Err combines every failure in the report, or returns nil if there was none.
func (r *Report) Err() (err error) {
	for _, outcome := range r.Outcomes {
		if outcome.Err != nil {
			err = multierr.Append(err, &common.NodeError{
				Host: outcome.Host,
				ID:   outcome.ID,
				Step: outcome.Step,
				Err:  outcome.Err,
			})
		}
	}
	return multierr.Append(err, r.Fatal)
}

// Status is HardFailure when the operation as a whole failed or when
// every recorded step failed, so that nothing was done on any node.
func (r *Report) Status() Status {
	if r.Fatal != nil {
		return HardFailure
	}
	failed := 0
	for _, outcome := range r.Outcomes {
		if outcome.Err != nil {
			failed++
		}
	}
	switch {
	case failed == 0:
		return Success
	case failed == len(r.Outcomes):
		return HardFailure
	default:
		return PartialFailure
	}
}

// FailedHosts lists, in order of first failure, every host with at
// least one failed step.
func (r *Report) FailedHosts() []string {
	var hosts []string
	seen := make(map[string]bool)
	for _, outcome := range r.Outcomes {
		if outcome.Err != nil && !seen[outcome.Host] {
			seen[outcome.Host] = true
			hosts = append(hosts, outcome.Host)
		}
	}
	return hosts
}

// Steps returns the outcomes recorded for host, in order.
func (r *Report) Steps(host string) []Outcome {
	var steps []Outcome
	for _, outcome := range r.Outcomes {
		if outcome.Host == host {
			steps = append(steps, outcome)
		}
	}
	return steps
}
