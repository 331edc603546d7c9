package common

import (
	"errors"
	"fmt"
)

var (
	ErrConnectFailed       = errors.New("connect failed")
	ErrRemoteCommandFailed = errors.New("remote command failed")
	ErrConfiguration       = errors.New("configuration error")
	ErrStoreUnavailable    = errors.New("metadata store unavailable")
	ErrStoreInconsistency  = errors.New("metadata store inconsistency")
	ErrConvergenceTimeout  = errors.New("ensemble did not converge in time")
	ErrBusy                = errors.New("another operation is in progress")

	// Returned at the MetadataStore boundary.
	ErrKeyExists   = errors.New("key already exists")
	ErrKeyNotFound = errors.New("key not found")
)

// NodeError describes the failure of one step against one node.
// ID is the node's ensemble id, or 0 when the node has none (installs).
type NodeError struct {
	Host string
	ID   int
	Step string
	Err  error
}

func (e *NodeError) Error() string {
	if e.ID > 0 {
		return fmt.Sprintf("%s (server.%d) %s: %v", e.Host, e.ID, e.Step, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Host, e.Step, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
