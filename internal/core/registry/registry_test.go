package registry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"recipe-importer/internal/core/recipe"
	"recipe-importer/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	calls   atomic.Int32
	create  func(name string) (recipe.ManagedIngredient, error)
	listing []recipe.ManagedIngredient
	listErr error
}

func (f *fakeBackend) CreateManaged(_ context.Context, name string) (recipe.ManagedIngredient, error) {
	f.calls.Add(1)
	return f.create(name)
}

func (f *fakeBackend) Suggest(_ context.Context, _ string) ([]recipe.ManagedIngredient, error) {
	f.calls.Add(1)
	return f.listing, f.listErr
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	r := New(DefaultCapacity, nil)
	r.Register(recipe.ManagedIngredient{ID: 7, Name: "Gul Lök"})

	got, ok := r.Resolve("  gul lök ")
	require.True(t, ok)
	assert.Equal(t, int64(7), got.ID)

	_, ok = r.Resolve("")
	assert.False(t, ok)
}

func TestRegisterEvictsFirstInserted(t *testing.T) {
	r := New(100, nil)
	for i := 1; i <= 101; i++ {
		r.Register(recipe.ManagedIngredient{ID: int64(i), Name: fmt.Sprintf("ingredient-%d", i)})
	}

	assert.Equal(t, 100, r.Len())
	_, ok := r.Resolve("ingredient-1")
	assert.False(t, ok)
	_, ok = r.Resolve("ingredient-101")
	assert.True(t, ok)
}

func TestRegisterOverwrites(t *testing.T) {
	r := New(2, nil)
	r.Register(recipe.ManagedIngredient{ID: 1, Name: "Salt"})
	r.Register(recipe.ManagedIngredient{ID: 2, Name: "salt"})

	got, _ := r.Resolve("SALT")
	assert.Equal(t, int64(2), got.ID)
	assert.Equal(t, 1, r.Len())
}

func TestRegisterIgnoresInvalid(t *testing.T) {
	r := New(2, nil)
	r.Register(recipe.ManagedIngredient{Name: "no id"})
	assert.Equal(t, 0, r.Len())
}

func TestCreateManagedRegistersResult(t *testing.T) {
	backend := &fakeBackend{create: func(name string) (recipe.ManagedIngredient, error) {
		return recipe.ManagedIngredient{ID: 42, Name: name}, nil
	}}
	r := New(DefaultCapacity, backend)

	ing, err := r.CreateManaged(context.Background(), "Paprika")
	require.NoError(t, err)
	assert.Equal(t, recipe.ManagedIngredient{ID: 42, Name: "Paprika"}, ing)

	got, ok := r.Resolve("paprika")
	require.True(t, ok)
	assert.Equal(t, ing, got)
	assert.Equal(t, int32(1), backend.calls.Load())
}

func TestCreateManagedFailures(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		create  func(string) (recipe.ManagedIngredient, error)
		wantErr error
	}{
		{
			name:    "empty name",
			input:   "   ",
			wantErr: common.ErrValidation,
		},
		{
			name:  "server rejects duplicate",
			input: "Salt",
			create: func(string) (recipe.ManagedIngredient, error) {
				return recipe.ManagedIngredient{}, common.ErrCreationFailed.WithMessage("duplicate name")
			},
			wantErr: common.ErrCreationFailed,
		},
		{
			name:  "network down",
			input: "Salt",
			create: func(string) (recipe.ManagedIngredient, error) {
				return recipe.ManagedIngredient{}, common.ErrNetworkFailure.Wrap(errors.New("dial tcp"))
			},
			wantErr: common.ErrNetworkFailure,
		},
		{
			name:  "incomplete response",
			input: "Salt",
			create: func(string) (recipe.ManagedIngredient, error) {
				return recipe.ManagedIngredient{Name: "Salt"}, nil
			},
			wantErr: common.ErrCreationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(DefaultCapacity, &fakeBackend{create: tt.create})

			_, err := r.CreateManaged(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, r.Len())
		})
	}
}

func TestPrime(t *testing.T) {
	backend := &fakeBackend{listing: []recipe.ManagedIngredient{
		{ID: 1, Name: "Salt"},
		{ID: 2, Name: "Peppar"},
	}}
	r := New(DefaultCapacity, nil)

	assert.Equal(t, 2, r.Prime(context.Background(), backend))
	_, ok := r.Resolve("peppar")
	assert.True(t, ok)

	failing := &fakeBackend{listErr: errors.New("boom")}
	assert.Equal(t, 0, New(DefaultCapacity, nil).Prime(context.Background(), failing))
}
