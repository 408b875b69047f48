package pathing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv(configDirEnv, "")
	t.Setenv(dataDirEnv, "")

	assert.Equal(t, "/etc/p1_load_monitor", GetConfigDir())
	assert.Equal(t, "/var/lib/p1_load_monitor/p1-meter.db", GetMeterDbPath())
}

func TestEnvOverridesAndEnsureDirs(t *testing.T) {
	root := t.TempDir()
	cfgDir := filepath.Join(root, "etc")
	dataDir := filepath.Join(root, "lib", "nested")
	t.Setenv(configDirEnv, cfgDir)
	t.Setenv(dataDirEnv, dataDir)

	require.NoError(t, EnsureDirs())
	for _, dir := range []string{cfgDir, dataDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(dataDir, "p1-meter.db"), GetMeterDbPath())
}
