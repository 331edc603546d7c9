package persistent_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zkfleet/zkfleet/common"
	"github.com/zkfleet/zkfleet/persistent"
)

var records = []common.ServerRecord{
	{Host: "zk-1.example.net", User: "ubuntu", Secret: "p1"},
	{Host: "10.0.0.2", User: "root", Secret: "with:colons"},
	{Host: "zk-3", User: "admin", Secret: ""},
}

func catalogs(t *testing.T) map[string]common.Catalog {
	dir := t.TempDir()
	logCatalog, err := persistent.NewLogCatalog(filepath.Join(dir, "servers", "server_list.log"))
	require.NoError(t, err)
	boltCatalog, err := persistent.NewBoltCatalog(filepath.Join(dir, "servers", "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, boltCatalog.Close())
	})
	return map[string]common.Catalog{
		"log":  logCatalog,
		"bolt": boltCatalog,
	}
}

func TestCatalog_EmptyList(t *testing.T) {
	for name, catalog := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			got, err := catalog.List()
			assert.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestCatalog_AddThenList(t *testing.T) {
	for name, catalog := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			for _, record := range records {
				require.NoError(t, catalog.Add(record))
			}
			got, err := catalog.List()
			assert.NoError(t, err)
			assert.Equal(t, records, got)
		})
	}
}

func TestCatalog_NoDuplicateCheck(t *testing.T) {
	for name, catalog := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, catalog.Add(records[0]))
			require.NoError(t, catalog.Add(records[0]))
			got, err := catalog.List()
			assert.NoError(t, err)
			assert.Len(t, got, 2)
		})
	}
}

func TestCatalog_RejectsInvalidRecords(t *testing.T) {
	invalid := []common.ServerRecord{
		{Host: "", User: "u", Secret: "s"},
		{Host: "h", User: "", Secret: "s"},
		{Host: "h:2181", User: "u", Secret: "s"},
		{Host: "h", User: "u", Secret: "line\nbreak"},
	}
	for name, catalog := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			for _, record := range invalid {
				err := catalog.Add(record)
				assert.ErrorIs(t, err, common.ErrConfiguration)
			}
			got, err := catalog.List()
			assert.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestCatalog_Remove(t *testing.T) {
	for name, catalog := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			for _, record := range records {
				require.NoError(t, catalog.Add(record))
			}
			require.NoError(t, catalog.Add(records[1]))

			assert.NoError(t, catalog.Remove(records[1].Host))
			got, err := catalog.List()
			assert.NoError(t, err)
			assert.Equal(t, []common.ServerRecord{records[0], records[2]}, got)

			// removing an unknown host is not an error
			assert.NoError(t, catalog.Remove("unknown"))
		})
	}
}

func TestLogCatalog_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server_list.log")
	catalog, err := persistent.NewLogCatalog(path)
	require.NoError(t, err)

	require.NoError(t, catalog.Add(records[0]))
	require.NoError(t, catalog.Add(records[1]))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "zk-1.example.net:ubuntu:p1\n10.0.0.2:root:with:colons\n", string(data))
}

func TestLogCatalog_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server_list.log")
	require.NoError(t, os.WriteFile(path, []byte("h1:u1:p1\nbroken\n"), 0600))
	catalog, err := persistent.NewLogCatalog(path)
	require.NoError(t, err)

	_, err = catalog.List()
	assert.Error(t, err)
}

func TestLogCatalog_Unreadable(t *testing.T) {
	dir := t.TempDir()
	// a directory where the log should be cannot be read as a file
	path := filepath.Join(dir, "server_list.log")
	require.NoError(t, os.Mkdir(path, 0755))
	catalog, err := persistent.NewLogCatalog(path)
	require.NoError(t, err)

	_, err = catalog.List()
	assert.Error(t, err)
}

func TestBoltCatalog_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	catalog, err := persistent.NewBoltCatalog(path)
	require.NoError(t, err)
	for _, record := range records {
		require.NoError(t, catalog.Add(record))
	}
	require.NoError(t, catalog.Close())

	catalog, err = persistent.NewBoltCatalog(path)
	require.NoError(t, err)
	defer catalog.Close()
	got, err := catalog.List()
	assert.NoError(t, err)
	assert.Equal(t, records, got)
}
