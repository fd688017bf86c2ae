package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

func TestDuration_UnmarshalYAML(t *testing.T) {
	t.Parallel()
	var d Duration
	require.NoError(t, yaml.Unmarshal([]byte(`"45s"`), &d))
	assert.Equal(t, 45*time.Second, d.AsDuration())
}

func TestDuration_UnmarshalYAML_Invalid(t *testing.T) {
	t.Parallel()
	var d Duration
	assert.Error(t, yaml.Unmarshal([]byte(`"not-a-duration"`), &d))
}

func TestBackendConfig_ToBackend(t *testing.T) {
	t.Parallel()
	bc := BackendConfig{
		ID:            "b1",
		Name:          "backend one",
		TransportType: vmcp.TransportStdio,
		Command:       "run-server",
		Args:          []string{"--flag"},
		Env:           map[string]string{"KEY": "VAL"},
		WorkingDir:    "/tmp",
		AuthRef:       "vault://backend-one",
	}
	b := bc.ToBackend()
	assert.Equal(t, bc.ID, b.ID)
	assert.Equal(t, bc.Name, b.Name)
	assert.Equal(t, bc.TransportType, b.TransportType)
	assert.Equal(t, bc.Command, b.Command)
	assert.Equal(t, bc.WorkingDir, b.WorkingDir)
	assert.Equal(t, bc.AuthRef, b.AuthRef)
	assert.Equal(t, []string{"--flag"}, b.Args)
	assert.Equal(t, "VAL", b.Env["KEY"])
}
