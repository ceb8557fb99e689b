package toolregistry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judgehost/judgehost/internal/toolregistry"
)

func TestRegisterFactoryRejectsMissingName(t *testing.T) {
	r := toolregistry.New(nil)
	err := r.RegisterFactory(toolregistry.Factory{Create: func(map[string]any) (any, error) { return nil, nil }})
	assert.Error(t, err)
}

func TestRegisterFactoryRejectsMissingCreate(t *testing.T) {
	r := toolregistry.New(nil)
	err := r.RegisterFactory(toolregistry.Factory{Name: "x"})
	assert.Error(t, err)
}

func TestCreateAllSkipsFactoryMissingRequiredService(t *testing.T) {
	r := toolregistry.New(nil)
	require.NoError(t, r.RegisterFactory(toolregistry.Factory{
		Name:     "needs-db",
		Requires: []string{"db"},
		Create: func(map[string]any) (any, error) {
			return &toolregistry.Descriptor{Name: "needs-db"}, nil
		},
	}))

	r.CreateAll(context.Background(), map[string]any{})
	_, ok := r.Get("needs-db")
	assert.False(t, ok)
}

func TestCreateAllMaterializesFactoryWhenServicesPresent(t *testing.T) {
	r := toolregistry.New(nil)
	require.NoError(t, r.RegisterFactory(toolregistry.Factory{
		Name:     "needs-db",
		Requires: []string{"db"},
		Create: func(services map[string]any) (any, error) {
			return &toolregistry.Descriptor{Name: "needs-db", Domain: services["db"].(string)}, nil
		},
	}))

	r.CreateAll(context.Background(), map[string]any{"db": "adapter"})
	d, ok := r.Get("needs-db")
	require.True(t, ok)
	assert.Equal(t, "adapter", d.Domain)
}

func TestCreateAllSwallowsFactoryError(t *testing.T) {
	r := toolregistry.New(nil)
	require.NoError(t, r.RegisterFactory(toolregistry.Factory{
		Name:   "broken",
		Create: func(map[string]any) (any, error) { return nil, errors.New("boom") },
	}))

	assert.NotPanics(t, func() { r.CreateAll(context.Background(), map[string]any{}) })
	_, ok := r.Get("broken")
	assert.False(t, ok)
}

func TestCreateAllSwallowsFactoryPanic(t *testing.T) {
	r := toolregistry.New(nil)
	require.NoError(t, r.RegisterFactory(toolregistry.Factory{
		Name:   "panics",
		Create: func(map[string]any) (any, error) { panic("kaboom") },
	}))

	assert.NotPanics(t, func() { r.CreateAll(context.Background(), map[string]any{}) })
}

func TestCreateAllAbsorbsSliceOfDescriptors(t *testing.T) {
	r := toolregistry.New(nil)
	require.NoError(t, r.RegisterFactory(toolregistry.Factory{
		Name: "multi",
		Create: func(map[string]any) (any, error) {
			return []*toolregistry.Descriptor{
				{Name: "a"},
				{Name: "b"},
			}, nil
		},
	}))
	r.CreateAll(context.Background(), map[string]any{})

	_, aOK := r.Get("a")
	_, bOK := r.Get("b")
	assert.True(t, aOK)
	assert.True(t, bOK)
}

func TestValidateInputWithNoSchemaAcceptsAnything(t *testing.T) {
	d := &toolregistry.Descriptor{Name: "anything"}
	assert.NoError(t, d.ValidateInput(map[string]any{"whatever": 1}))
}

func TestValidateInputRejectsMissingRequiredField(t *testing.T) {
	r := toolregistry.New(nil)
	require.NoError(t, r.RegisterFactory(toolregistry.Factory{
		Name: "strict",
		Create: func(map[string]any) (any, error) {
			return &toolregistry.Descriptor{
				Name: "strict",
				InputSchema: map[string]any{
					"type":     "object",
					"required": []any{"name"},
				},
			}, nil
		},
	}))
	r.CreateAll(context.Background(), map[string]any{})

	d, ok := r.Get("strict")
	require.True(t, ok)
	assert.Error(t, d.ValidateInput(map[string]any{}))
	assert.NoError(t, d.ValidateInput(map[string]any{"name": "x"}))
}

func TestCreateByDomainFiltersByDomainTag(t *testing.T) {
	r := toolregistry.New(nil)
	require.NoError(t, r.RegisterFactory(toolregistry.Factory{
		Name:   "judge",
		Domain: "judge",
		Create: func(map[string]any) (any, error) { return &toolregistry.Descriptor{Name: "judge", Domain: "judge"}, nil },
	}))
	require.NoError(t, r.RegisterFactory(toolregistry.Factory{
		Name:   "feedback",
		Domain: "feedback",
		Create: func(map[string]any) (any, error) { return &toolregistry.Descriptor{Name: "feedback", Domain: "feedback"}, nil },
	}))
	r.CreateAll(context.Background(), map[string]any{})

	judgeTools := r.CreateByDomain("judge")
	require.Len(t, judgeTools, 1)
	assert.Equal(t, "judge", judgeTools[0].Name)
}

func TestListReturnsEveryRegisteredDescriptor(t *testing.T) {
	r := toolregistry.New(nil)
	require.NoError(t, r.RegisterFactory(toolregistry.Factory{
		Name:   "a",
		Create: func(map[string]any) (any, error) { return &toolregistry.Descriptor{Name: "a"}, nil },
	}))
	require.NoError(t, r.RegisterFactory(toolregistry.Factory{
		Name:   "b",
		Create: func(map[string]any) (any, error) { return &toolregistry.Descriptor{Name: "b"}, nil },
	}))
	r.CreateAll(context.Background(), map[string]any{})

	assert.Len(t, r.List(), 2)
}

func TestListOrdersDescriptorsByName(t *testing.T) {
	r := toolregistry.New(nil)
	for _, name := range []string{"zebra", "alpha", "mid"} {
		require.NoError(t, r.RegisterFactory(toolregistry.Factory{
			Name:   name,
			Create: func(map[string]any) (any, error) { return &toolregistry.Descriptor{Name: name}, nil },
		}))
	}
	r.CreateAll(context.Background(), map[string]any{})

	var names []string
	for _, d := range r.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zebra"}, names)
}
