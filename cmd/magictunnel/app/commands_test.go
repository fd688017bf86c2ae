package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmdRegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["version"])
	assert.True(t, names["validate"])
}

func TestEnvDSNResolver(t *testing.T) {
	t.Setenv("TEST_DSN_REF", "sqlite|/tmp/tools.db")

	driver, dsn, err := envDSNResolver("TEST_DSN_REF")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", driver)
	assert.Equal(t, "/tmp/tools.db", dsn)
}

func TestEnvDSNResolverMissingVar(t *testing.T) {
	_, _, err := envDSNResolver("NO_SUCH_DSN_REF_VAR")
	assert.Error(t, err)
}

func TestEnvDSNResolverMalformed(t *testing.T) {
	t.Setenv("TEST_DSN_REF_BAD", "just-a-dsn-no-pipe")

	_, _, err := envDSNResolver("TEST_DSN_REF_BAD")
	assert.Error(t, err)
}
