package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSReader_LookupEnv(t *testing.T) {
	t.Setenv("MAGICTUNNEL_TEST_VAR", "present")

	r := OSReader{}
	val, ok := r.LookupEnv("MAGICTUNNEL_TEST_VAR")
	assert.True(t, ok)
	assert.Equal(t, "present", val)

	_, alreadySet := os.LookupEnv("MAGICTUNNEL_TEST_VAR_UNSET")
	require.False(t, alreadySet, "test precondition violated: MAGICTUNNEL_TEST_VAR_UNSET is set")

	_, ok = r.LookupEnv("MAGICTUNNEL_TEST_VAR_UNSET")
	assert.False(t, ok)
}
