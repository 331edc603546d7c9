package ensemble_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zkfleet/zkfleet/common"
	"github.com/zkfleet/zkfleet/ensemble"
)

func TestGenerate(t *testing.T) {
	for n := 1; n <= 7; n++ {
		var hosts []string
		for i := 0; i < n; i++ {
			hosts = append(hosts, fmt.Sprintf("node-%d", i))
		}
		text, err := ensemble.Generate(hosts)
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(text, "\n"))
		lines := strings.Split(strings.TrimSuffix(strings.TrimPrefix(text, "\n"), "\n"), "\n")
		require.Len(t, lines, n)
		for i, line := range lines {
			assert.Equal(t, fmt.Sprintf("server.%d=node-%d:2888:3888", i+1, i), line)
		}

		again, err := ensemble.Generate(hosts)
		assert.NoError(t, err)
		assert.Equal(t, text, again)
	}
}

func TestGenerate_TwoHosts(t *testing.T) {
	text, err := ensemble.Generate([]string{"h1", "h2"})
	assert.NoError(t, err)
	assert.Equal(t, "\nserver.1=h1:2888:3888\nserver.2=h2:2888:3888\n", text)
}

func TestGenerate_Rejects(t *testing.T) {
	_, err := ensemble.Generate(nil)
	assert.ErrorIs(t, err, common.ErrConfiguration)

	_, err = ensemble.Generate([]string{"h1", ""})
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestConnectionString(t *testing.T) {
	assert.Equal(t, "h1:2181,h2:2181", ensemble.ConnectionString([]string{"h1", "h2"}))
	assert.Equal(t, "h1:2181", ensemble.ConnectionString([]string{"h1"}))
}

func TestArtifact_WriteOverwrites(t *testing.T) {
	artifact := ensemble.Artifact{
		Path: filepath.Join(t.TempDir(), "settings", "config.txt"),
		Base: ensemble.DefaultBase,
	}
	require.NoError(t, artifact.Write([]string{"a", "b", "c"}))
	require.NoError(t, artifact.Write([]string{"h1", "h2"}))

	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, ensemble.DefaultBase+"\nserver.1=h1:2888:3888\nserver.2=h2:2888:3888\n", string(data))
}

func TestArtifact_WriteEmptyLeavesFileAlone(t *testing.T) {
	artifact := ensemble.Artifact{Path: filepath.Join(t.TempDir(), "config.txt")}
	require.NoError(t, artifact.Write([]string{"h1"}))

	err := artifact.Write(nil)
	assert.ErrorIs(t, err, common.ErrConfiguration)

	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, "\nserver.1=h1:2888:3888\n", string(data))
}
