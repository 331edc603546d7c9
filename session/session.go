// Package session maintains the ensemble session metadata kept in the
// coordination store itself: server and client counts, one readiness
// flag per server, a synchronization signal and the session start time.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zkfleet/zkfleet/common"
	"go.uber.org/multierr"
)

const (
	NumberClientsKey = "/number_clients"
	NumberServersKey = "/number_servers"
	SignalSyncKey    = "/signal_sync"
	ServerHourKey    = "/server_hour"
)

// ServerKey is the readiness flag of the server with the given ensemble id.
func ServerKey(id int) string {
	return "/server" + strconv.Itoa(id)
}

// ClientKey is the registration key of the i-th client.
func ClientKey(i int) string {
	return "/client" + strconv.Itoa(i)
}

type entry struct {
	key   string
	value string
}

// Initialize creates every session key that does not exist yet. Existing
// keys keep their values, so repeated calls leave the store unchanged.
func Initialize(store common.MetadataStore, serverCount int, now time.Time) error {
	if serverCount < 1 {
		return fmt.Errorf("%w: session needs at least one server, got %d", common.ErrConfiguration, serverCount)
	}
	entries := []entry{
		{NumberClientsKey, "0"},
		{NumberServersKey, strconv.Itoa(serverCount)},
	}
	for id := 1; id <= serverCount; id++ {
		entries = append(entries, entry{ServerKey(id), strconv.FormatBool(false)})
	}
	entries = append(entries,
		entry{SignalSyncKey, strconv.FormatBool(false)},
		entry{ServerHourKey, now.UTC().Format(time.RFC3339)},
	)

	for _, e := range entries {
		err := store.Create(e.key, []byte(e.value))
		if err != nil && !errors.Is(err, common.ErrKeyExists) {
			return fmt.Errorf("initializing session: %w", err)
		}
	}
	return nil
}

// Clear deletes the session. Counters are read before the keys they
// count are deleted. Every key is deleted exactly once; a missing key or
// store failure does not stop the remaining deletions but the whole call
// then fails with ErrStoreInconsistency. A store holding no session at
// all is left as is.
func Clear(store common.MetadataStore) error {
	present, err := anyPresent(store)
	if err != nil {
		return fmt.Errorf("%w: clearing session: %w", common.ErrStoreInconsistency, err)
	}
	if !present {
		return nil
	}

	var errs error
	errs = multierr.Append(errs, clearCounted(store, NumberClientsKey, ClientKey))
	errs = multierr.Append(errs, clearCounted(store, NumberServersKey, ServerKey))
	errs = multierr.Append(errs, store.Delete(SignalSyncKey, true))
	errs = multierr.Append(errs, store.Delete(ServerHourKey, true))
	if errs != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreInconsistency, errs)
	}
	return nil
}

func clearCounted(store common.MetadataStore, counterKey string, keyFor func(int) string) error {
	var errs error
	n, err := readCount(store, counterKey)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	for i := 1; i <= n; i++ {
		errs = multierr.Append(errs, store.Delete(keyFor(i), true))
	}
	return multierr.Append(errs, store.Delete(counterKey, true))
}

func readCount(store common.MetadataStore, key string) (int, error) {
	raw, err := store.Get(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: invalid counter %q", key, raw)
	}
	return n, nil
}

func anyPresent(store common.MetadataStore) (bool, error) {
	for _, key := range []string{NumberClientsKey, NumberServersKey, SignalSyncKey, ServerHourKey} {
		ok, err := store.Exists(key)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// State is a snapshot of the session metadata.
type State struct {
	Active     bool
	Servers    int
	Clients    int
	Ready      []bool // Ready[i] is the flag of server id i+1
	SignalSync bool
	StartedAt  time.Time
}

// Read returns the current session. A store without /number_servers
// yields an inactive State.
func Read(store common.MetadataStore) (State, error) {
	var state State
	servers, err := readCount(store, NumberServersKey)
	if errors.Is(err, common.ErrKeyNotFound) {
		return state, nil
	}
	if err != nil {
		return state, err
	}
	state.Active = true
	state.Servers = servers

	if state.Clients, err = readCount(store, NumberClientsKey); err != nil {
		return state, err
	}
	for id := 1; id <= servers; id++ {
		ready, err := readFlag(store, ServerKey(id))
		if err != nil {
			return state, err
		}
		state.Ready = append(state.Ready, ready)
	}
	if state.SignalSync, err = readFlag(store, SignalSyncKey); err != nil {
		return state, err
	}
	raw, err := store.Get(ServerHourKey)
	if err != nil {
		return state, err
	}
	if state.StartedAt, err = time.Parse(time.RFC3339, string(raw)); err != nil {
		return state, fmt.Errorf("%s: %w", ServerHourKey, err)
	}
	return state, nil
}

func readFlag(store common.MetadataStore, key string) (bool, error) {
	raw, err := store.Get(key)
	if err != nil {
		return false, err
	}
	flag, err := strconv.ParseBool(string(raw))
	if err != nil {
		return false, fmt.Errorf("%s: invalid flag %q", key, raw)
	}
	return flag, nil
}
