package config_test

import (
	"testing"

	"github.com/pscal-lang/pscal/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBindsKnownVariables(t *testing.T) {
	cfg, err := config.Load([]string{
		"HOME=/home/pscal",
		"PSCAL_STRICT_SUCCESS=true",
		"PSCAL_INIT_TERM=1",
		"PSCAL_RUN_BINARY=/usr/local/bin/pscal",
		"CLIKE_LIB_DIR=/opt/pscal/lib/clike",
		"PASCAL_LIB_DIR=/opt/pscal/lib/pascal",
		"UNRELATED=ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, "/home/pscal", cfg.Home)
	assert.True(t, cfg.StrictSuccess)
	assert.True(t, cfg.InitTerm)
	assert.Equal(t, "/usr/local/bin/pscal", cfg.RunBinary)
	assert.Equal(t, "/opt/pscal/lib/clike", cfg.LibDirs["CLIKE"])
	assert.Equal(t, "/opt/pscal/lib/pascal", cfg.LibDirs["PASCAL"])
	assert.Len(t, cfg.LibDirs, 2)
}

func TestLoadDefaultsBooleansFalse(t *testing.T) {
	cfg, err := config.Load([]string{"HOME=/home/pscal"})
	require.NoError(t, err)
	assert.False(t, cfg.StrictSuccess)
	assert.False(t, cfg.InitTerm)
}
