package common

import (
	"context"
)

// ServerRecord represents one known ensemble node together with the
// credentials used to reach it. Host identifies the record.
type ServerRecord struct {
	Host   string
	User   string
	Secret string
}

// Catalog is the interface that when implemented can be used as
// the persisted, ordered list of ensemble servers. The position of a
// record in List (1-based) is that server's ensemble id.
type Catalog interface {
	// Add appends the record. Duplicates are not checked.
	Add(record ServerRecord) error
	// List returns every record in insertion order. An absent or empty
	// catalog yields an empty slice and no error.
	List() ([]ServerRecord, error)
	// Remove drops every record whose host matches.
	Remove(host string) error
	Close() error
}

// Channel is one authenticated remote-execution session with a node.
// Every lifecycle command is fixed; only its parameters vary.
type Channel interface {
	InstallMonitor() error
	GrantRemoteAccess(mode string) error
	SendFile(localPath, remotePath string) error
	StartDaemon(id int, ensemble, credential string) error
	StartMonitorAgent(id int, ensemble, credential string) error
	StopDaemon(id int, ensemble, credential string) error
	Close() error
}

// Connector opens Channels. Connect returns an error wrapping
// ErrConnectFailed if the host cannot be reached or authenticated.
type Connector interface {
	Connect(ctx context.Context, record ServerRecord) (Channel, error)
}

// MetadataStore is the minimal hierarchical key/value API of the
// coordination service holding session metadata.
type MetadataStore interface {
	Exists(key string) (bool, error)
	// Create is conditional: it fails with ErrKeyExists if the key is present.
	Create(key string, value []byte) error
	// Get fails with ErrKeyNotFound if the key is absent.
	Get(key string) ([]byte, error)
	// Delete fails with ErrKeyNotFound if the key is absent.
	Delete(key string, recursive bool) error
	Close() error
}

// StoreDialer opens a MetadataStore for an ensemble connection string
// (host1:2181,host2:2181,...).
type StoreDialer interface {
	Open(ensemble string) (MetadataStore, error)
}

// Prober reports, for each address, whether the coordination daemon
// listening there is serving requests.
type Prober interface {
	Ready(addresses []string) []bool
}
