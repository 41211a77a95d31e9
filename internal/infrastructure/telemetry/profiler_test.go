package telemetry

import (
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewProfiler_Disabled(t *testing.T) {
	p, err := NewProfiler(ProfilerConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())

	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestNewProfiler_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProfilerConfig
		wantErr string
	}{
		{
			name:    "missing server address",
			cfg:     ProfilerConfig{Enabled: true, ApplicationName: "pms-channelsync"},
			wantErr: "server address",
		},
		{
			name:    "missing application name",
			cfg:     ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"},
			wantErr: "application name",
		},
		{
			name: "unknown profile type",
			cfg: ProfilerConfig{
				Enabled:         true,
				ServerAddress:   "http://localhost:4040",
				ApplicationName: "pms-channelsync",
				ProfileTypes:    []string{"cpu", "heap"},
			},
			wantErr: `unknown profile type "heap"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProfiler(tt.cfg, zap.NewNop())
			require.Error(t, err)
			assert.Nil(t, p)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolveProfileTypes(t *testing.T) {
	types, err := resolveProfileTypes(nil)
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{
		pyroscope.ProfileCPU,
		pyroscope.ProfileAllocObjects,
		pyroscope.ProfileAllocSpace,
		pyroscope.ProfileInuseObjects,
		pyroscope.ProfileInuseSpace,
	}, types)

	types, err = resolveProfileTypes([]string{"goroutines", "mutex_count"})
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileGoroutines, pyroscope.ProfileMutexCount}, types)
}
