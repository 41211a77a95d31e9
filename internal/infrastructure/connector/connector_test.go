package connector

import (
	"testing"

	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	connectors, err := Build([]config.BackendConfig{
		{ID: "direct", Kind: KindMemory},
		{
			ID:         "ota",
			Name:       "Big OTA",
			Kind:       KindHTTP,
			OTA:        true,
			BaseURL:    "https://ota.example.com/v1",
			BatchSize:  25,
			PropertyID: "7b0c4f5e-2c1a-4d59-9b0e-0d8f7f3c1a11",
		},
	}, nil)
	require.NoError(t, err)
	require.Len(t, connectors, 2)

	direct := connectors[0].Backend()
	assert.Equal(t, "direct", direct.Name)
	assert.False(t, direct.IsOTA())
	assert.Equal(t, channel.DefaultBatchSize, direct.BatchSize)

	adapter, err := connectors[0].Adapter(channel.EntityListing)
	require.NoError(t, err)
	assert.IsType(t, &MemoryAdapter{}, adapter)

	ota := connectors[1].Backend()
	assert.True(t, ota.IsOTA())
	assert.Equal(t, 25, ota.BatchSize)
	require.NotNil(t, ota.PropertyID)
	assert.Nil(t, ota.CompanyID)

	adapter, err = connectors[1].Adapter(channel.EntityAvailability)
	require.NoError(t, err)
	assert.IsType(t, &HTTPAdapter{}, adapter)
}

func TestBuild_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfgs []config.BackendConfig
	}{
		{"missing id", []config.BackendConfig{{Kind: KindMemory}}},
		{"unknown kind", []config.BackendConfig{{ID: "x", Kind: "ftp"}}},
		{"bad property id", []config.BackendConfig{{ID: "x", Kind: KindMemory, PropertyID: "nope"}}},
		{"http without url", []config.BackendConfig{{ID: "x", Kind: KindHTTP}}},
		{"duplicate id", []config.BackendConfig{{ID: "x", Kind: KindMemory}, {ID: "x", Kind: KindMemory}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.cfgs, nil)
			assert.Error(t, err)
		})
	}
}

func TestConnector_UnregisteredEntity(t *testing.T) {
	conn := NewConnector(channel.Backend{ID: "ota"})
	_, err := conn.Adapter(channel.EntityRoomType)
	assert.ErrorIs(t, err, channel.ErrEntityNotRegistered)

	conn.Register(channel.EntityRoomType, NewMemoryAdapter(""))
	_, err = conn.Adapter(channel.EntityRoomType)
	assert.NoError(t, err)
}
