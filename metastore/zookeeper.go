// Package metastore provides MetadataStore implementations: a ZooKeeper
// client for real ensembles and an in-memory store.
package metastore

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/zkfleet/zkfleet/common"
)

// ZKStore is a MetadataStore backed by a ZooKeeper session.
type ZKStore struct {
	conn *zk.Conn
	acl  []zk.ACL
}

var _ common.MetadataStore = &ZKStore{}

func (s *ZKStore) Exists(key string) (bool, error) {
	ok, _, err := s.conn.Exists(key)
	if err != nil {
		return false, translate(key, err)
	}
	return ok, nil
}

// Create relies on ZooKeeper's own create-if-absent semantics, so two
// concurrent creators of the same key can never both succeed.
func (s *ZKStore) Create(key string, value []byte) error {
	_, err := s.conn.Create(key, value, 0, s.acl)
	return translate(key, err)
}

func (s *ZKStore) Get(key string) ([]byte, error) {
	data, _, err := s.conn.Get(key)
	if err != nil {
		return nil, translate(key, err)
	}
	return data, nil
}

func (s *ZKStore) Delete(key string, recursive bool) error {
	if recursive {
		children, _, err := s.conn.Children(key)
		if err != nil {
			return translate(key, err)
		}
		for _, child := range children {
			if err := s.Delete(path.Join(key, child), true); err != nil && !errors.Is(err, common.ErrKeyNotFound) {
				return err
			}
		}
	}
	// -1 matches any version
	return translate(key, s.conn.Delete(key, -1))
}

func (s *ZKStore) Close() error {
	s.conn.Close()
	return nil
}

func translate(key string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, zk.ErrNodeExists):
		return fmt.Errorf("%s: %w", key, common.ErrKeyExists)
	case errors.Is(err, zk.ErrNoNode):
		return fmt.Errorf("%s: %w", key, common.ErrKeyNotFound)
	case errors.Is(err, zk.ErrNotEmpty), errors.Is(err, zk.ErrBadArguments), errors.Is(err, zk.ErrInvalidPath):
		return fmt.Errorf("%s: %w", key, err)
	default:
		return fmt.Errorf("%s: %w: %v", key, common.ErrStoreUnavailable, err)
	}
}

// ZKDialer opens ZKStores. Open blocks until a session is established
// or ConnectTimeout elapses.
type ZKDialer struct {
	SessionTimeout time.Duration
	ConnectTimeout time.Duration
	Logger         *log.Logger
}

var _ common.StoreDialer = ZKDialer{}

func (d ZKDialer) Open(ensemble string) (common.MetadataStore, error) {
	servers := strings.Split(ensemble, ",")
	logger := d.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[ZooKeeper] ", log.LstdFlags)
	}
	conn, events, err := zk.Connect(servers, d.SessionTimeout, zk.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}

	timer := time.NewTimer(d.ConnectTimeout)
	defer timer.Stop()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return nil, fmt.Errorf("%w: connection to %s closed", common.ErrStoreUnavailable, ensemble)
			}
			if event.State == zk.StateHasSession {
				go func() {
					for range events {
					}
				}()
				return &ZKStore{conn: conn, acl: zk.WorldACL(zk.PermAll)}, nil
			}
			if event.State == zk.StateAuthFailed {
				conn.Close()
				return nil, fmt.Errorf("%w: authentication with %s failed", common.ErrStoreUnavailable, ensemble)
			}
		case <-timer.C:
			conn.Close()
			return nil, fmt.Errorf("%w: no session with %s after %v", common.ErrStoreUnavailable, ensemble, d.ConnectTimeout)
		}
	}
}
