package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastreamhq/forcetap/pkg/config"
	"github.com/datastreamhq/forcetap/pkg/connector/core"
)

type stubSource struct {
	core.Source
}

func (s *stubSource) Initialize(ctx context.Context, cfg *config.BaseConfig) error { return nil }

func TestRegisterAndCreateSource(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterSource("stub", func(cfg *config.BaseConfig) (core.Source, error) {
		return &stubSource{}, nil
	}))

	assert.True(t, r.HasSource("stub"))
	assert.Contains(t, r.ListSources(), "stub")

	source, err := r.CreateSource("stub", config.NewBaseConfig("stub", "stub"))
	require.NoError(t, err)
	assert.NotNil(t, source)
}

func TestRegisterDuplicateSource(t *testing.T) {
	r := NewRegistry()
	factory := func(cfg *config.BaseConfig) (core.Source, error) { return &stubSource{}, nil }

	require.NoError(t, r.RegisterSource("stub", factory))
	assert.Error(t, r.RegisterSource("stub", factory))
}

func TestCreateUnknownConnector(t *testing.T) {
	r := NewRegistry()

	_, err := r.CreateSource("missing", config.NewBaseConfig("x", "x"))
	assert.Error(t, err)

	_, err = r.CreateDestination("missing", config.NewBaseConfig("x", "x"))
	assert.Error(t, err)
}

func TestClear(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterSource("stub", func(cfg *config.BaseConfig) (core.Source, error) {
		return &stubSource{}, nil
	}))

	r.Clear()
	assert.False(t, r.HasSource("stub"))
	assert.Empty(t, r.ListSources())
}
