package suggest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"recipe-importer/internal/core/formset"
	"recipe-importer/internal/core/recipe"
	"recipe-importer/internal/core/registry"
	"recipe-importer/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var catalog = []recipe.ManagedIngredient{
	{ID: 1, Name: "Tomato"},
	{ID: 2, Name: "Tomato paste"},
	{ID: 3, Name: "Salt"},
}

type fakeQuerier struct {
	mu      sync.Mutex
	queries []string
	gates   map[string]chan struct{}
	err     error
}

func (f *fakeQuerier) Suggest(ctx context.Context, query string) ([]recipe.ManagedIngredient, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	gate := f.gates[query]
	err := f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	var out []recipe.ManagedIngredient
	for _, ing := range catalog {
		if strings.Contains(strings.ToLower(ing.Name), strings.ToLower(query)) {
			out = append(out, ing)
		}
	}
	return out, nil
}

func (f *fakeQuerier) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.queries))
	copy(out, f.queries)
	return out
}

type fixture struct {
	engine  *Engine
	querier *fakeQuerier
	rows    *formset.Manager
	reg     *registry.Registry
	key     string
}

func newFixture(t *testing.T, debounce time.Duration) *fixture {
	t.Helper()
	reg := registry.New(registry.DefaultCapacity, nil)
	rows := formset.NewManager(formset.NewBuilder(formset.DefaultTemplate("ingredient_set"), reg), time.Second)
	q := &fakeQuerier{gates: map[string]chan struct{}{}}
	opts := DefaultOptions()
	opts.Debounce = debounce
	opts.BlurGrace = 20 * time.Millisecond
	e := NewEngine(opts, q, rows, reg)
	t.Cleanup(e.Close)

	return &fixture{engine: e, querier: q, rows: rows, reg: reg, key: rows.AddRow(formset.RowData{}).Key}
}

func (fx *fixture) waitPhase(t *testing.T, phase Phase) View {
	t.Helper()
	require.Eventually(t, func() bool {
		return fx.engine.View(fx.key).Phase == phase
	}, time.Second, 5*time.Millisecond)
	return fx.engine.View(fx.key)
}

func TestDebounceCollapsesKeystrokes(t *testing.T) {
	fx := newFixture(t, 50*time.Millisecond)

	for _, text := range []string{"to", "tom", "toma", "tomat", "tomato"} {
		v := fx.engine.Input(fx.key, text)
		assert.Equal(t, PhasePending, v.Phase)
	}

	v := fx.waitPhase(t, PhaseDisplayed)
	assert.Equal(t, []string{"tomato"}, fx.querier.calls())
	assert.Len(t, v.Suggestions, 2)
}

func TestTypingBeforeWindowElapsesQueriesOnce(t *testing.T) {
	fx := newFixture(t, 80*time.Millisecond)

	fx.engine.Input(fx.key, "Toma")
	time.Sleep(20 * time.Millisecond)
	fx.engine.Input(fx.key, "Tomato")

	v := fx.waitPhase(t, PhaseDisplayed)
	assert.Equal(t, []string{"Tomato"}, fx.querier.calls())
	assert.Equal(t, "Tomato", v.Query)
}

func TestShortQueryIsRejected(t *testing.T) {
	fx := newFixture(t, time.Millisecond)

	v := fx.engine.Input(fx.key, " t ")
	assert.Equal(t, PhaseIdle, v.Phase)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, fx.querier.calls())
}

func TestIdenticalQueriesHitCache(t *testing.T) {
	fx := newFixture(t, time.Millisecond)

	fx.engine.Input(fx.key, "Salt")
	fx.waitPhase(t, PhaseDisplayed)
	fx.engine.Input(fx.key, "s")
	assert.Equal(t, PhaseIdle, fx.engine.View(fx.key).Phase)
	fx.engine.Input(fx.key, "SALT ")
	fx.waitPhase(t, PhaseDisplayed)

	assert.Equal(t, []string{"Salt"}, fx.querier.calls())
	stats := fx.engine.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 1, stats.Size)

	// 查到的結果同時登錄到登錄表
	_, ok := fx.reg.Resolve("salt")
	assert.True(t, ok)
}

func TestEmptyResultsAreCached(t *testing.T) {
	fx := newFixture(t, time.Millisecond)

	fx.engine.Input(fx.key, "zz")
	require.Eventually(t, func() bool { return len(fx.querier.calls()) == 1 }, time.Second, 5*time.Millisecond)
	fx.waitPhase(t, PhaseIdle)

	fx.engine.Input(fx.key, "ZZ")
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, fx.querier.calls(), 1)
	assert.Equal(t, PhaseIdle, fx.engine.View(fx.key).Phase)
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	gate := make(chan struct{})
	fx.querier.gates["tom"] = gate

	fx.engine.Input(fx.key, "tom")
	require.Eventually(t, func() bool { return len(fx.querier.calls()) == 1 }, time.Second, 5*time.Millisecond)

	fx.engine.Input(fx.key, "salt")
	v := fx.waitPhase(t, PhaseDisplayed)
	require.Equal(t, "salt", v.Query)

	close(gate)
	require.Eventually(t, func() bool { return fx.engine.CacheStats().Size == 2 }, time.Second, 5*time.Millisecond)

	v = fx.engine.View(fx.key)
	assert.Equal(t, "salt", v.Query)
	require.Len(t, v.Suggestions, 1)
	assert.Equal(t, "Salt", v.Suggestions[0].Name)
}

func TestNetworkFailureHidesSuggestions(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	fx.querier.err = common.ErrNetworkFailure.Wrap(errors.New("connection refused"))

	fx.engine.Input(fx.key, "tomato")
	require.Eventually(t, func() bool { return len(fx.querier.calls()) == 1 }, time.Second, 5*time.Millisecond)
	fx.waitPhase(t, PhaseIdle)
	assert.Zero(t, fx.engine.CacheStats().Size)
}

func TestKeyboardNavigation(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	fx.engine.Input(fx.key, "tomato")
	fx.waitPhase(t, PhaseDisplayed)

	// Enter 沒有選取時不做任何事
	v, err := fx.engine.Key(fx.key, KeyEnter)
	require.NoError(t, err)
	assert.Equal(t, PhaseDisplayed, v.Phase)

	steps := []struct {
		key  string
		want int
	}{
		{KeyArrowUp, 0},
		{KeyArrowDown, 1},
		{KeyArrowDown, 1},
		{KeyArrowUp, 0},
		{KeyArrowDown, 1},
	}
	for _, s := range steps {
		v, err = fx.engine.Key(fx.key, s.key)
		require.NoError(t, err)
		assert.Equal(t, s.want, v.Highlight, s.key)
	}

	v, err = fx.engine.Key(fx.key, KeyEnter)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, v.Phase)
	assert.Equal(t, "Tomato paste", v.Text)

	row, ok := fx.rows.Row(fx.key)
	require.True(t, ok)
	assert.Equal(t, int64(2), row.ManagedID)
	assert.Equal(t, "Tomato paste", row.DisplayName)

	_, err = fx.engine.Key(fx.key, "Tab")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestEscapeCancelsWithoutCommit(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	fx.engine.Input(fx.key, "tomato")
	fx.waitPhase(t, PhaseDisplayed)
	fx.engine.Key(fx.key, KeyArrowDown)

	v, err := fx.engine.Key(fx.key, KeyEscape)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, v.Phase)
	assert.Empty(t, v.Suggestions)

	row, _ := fx.rows.Row(fx.key)
	assert.Zero(t, row.ManagedID)
}

func TestBlurHidesAfterGrace(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	fx.engine.Input(fx.key, "tomato")
	fx.waitPhase(t, PhaseDisplayed)

	v := fx.engine.Blur(fx.key)
	assert.Equal(t, PhaseDisplayed, v.Phase)

	// 寬限時間內仍可點選
	v, err := fx.engine.Select(fx.key, 0)
	require.NoError(t, err)
	assert.Equal(t, "Tomato", v.Text)

	fx.engine.Input(fx.key, "salt")
	fx.waitPhase(t, PhaseDisplayed)
	fx.engine.Blur(fx.key)
	fx.waitPhase(t, PhaseIdle)
}

func TestFocusRequeriesFromCache(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	fx.engine.Input(fx.key, "salt")
	fx.waitPhase(t, PhaseDisplayed)
	fx.engine.Key(fx.key, KeyEscape)

	fx.engine.Focus(fx.key)
	fx.waitPhase(t, PhaseDisplayed)
	assert.Len(t, fx.querier.calls(), 1)
}

func TestSelectRejectsOutOfRange(t *testing.T) {
	fx := newFixture(t, time.Millisecond)

	_, err := fx.engine.Select(fx.key, 0)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestForgetStopsPendingQuery(t *testing.T) {
	fx := newFixture(t, 20*time.Millisecond)
	fx.engine.Input(fx.key, "tomato")
	fx.engine.Forget(fx.key)

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, fx.querier.calls())
	assert.Equal(t, PhaseIdle, fx.engine.View(fx.key).Phase)
}
