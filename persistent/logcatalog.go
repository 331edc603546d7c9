package persistent

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zkfleet/zkfleet/common"
)

// LogCatalog is a catalog implementation backed by an append-only text
// file holding one host:user:secret record per line.
type LogCatalog struct {
	mu   sync.Mutex
	path string
}

var _ common.Catalog = &LogCatalog{}

// NewLogCatalog returns a catalog stored at path. The file is created on
// the first Add; its parent directory is created immediately.
func NewLogCatalog(path string) (*LogCatalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &LogCatalog{path: path}, nil
}

func (c *LogCatalog) Add(record common.ServerRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("[Add]: opening catalog: %w", err)
	}
	if _, err := f.WriteString(formatRecord(record)); err != nil {
		f.Close()
		return fmt.Errorf("[Add]: writing catalog: %w", err)
	}
	return f.Close()
}

func (c *LogCatalog) List() ([]common.ServerRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read()
}

func (c *LogCatalog) read() ([]common.ServerRecord, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []common.ServerRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[List]: reading catalog: %w", err)
	}
	return parseRecords(string(data))
}

// Remove rewrites the log without the records for host. The rewrite goes
// through a temporary file so a crash never leaves a truncated catalog.
func (c *LogCatalog) Remove(host string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.read()
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, record := range records {
		if record.Host != host {
			b.WriteString(formatRecord(record))
		}
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("[Remove]: %w", err)
	}
	return os.Rename(tmp, c.path)
}

func (c *LogCatalog) Close() error {
	return nil
}
