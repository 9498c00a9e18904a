package memory

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danielpatrickdp/affect-tick/internal/bus"
	tickerr "github.com/danielpatrickdp/affect-tick/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// #region helpers
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeStore struct {
	mu   sync.Mutex
	recs map[string]Record
	puts int
}

func newFakeStore(recs ...Record) *fakeStore {
	f := &fakeStore{recs: make(map[string]Record)}
	for _, r := range recs {
		f.recs[r.ID] = r
	}
	return f
}

func (f *fakeStore) Put(_ context.Context, r Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[r.ID] = r
	f.puts++
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recs[id]
	if !ok {
		return Record{}, tickerr.New(tickerr.CodeNotFound, id)
	}
	return r, nil
}

func (f *fakeStore) Query(_ context.Context, q Filter) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Record
	for _, r := range f.recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, mod func(*Config)) (*Service, *fakeStore, *fakeClock) {
	t.Helper()
	cfg := DefaultConfig()
	if mod != nil {
		mod(&cfg)
	}
	clock := &fakeClock{now: epoch}
	store := newFakeStore()
	s, err := New(cfg, Options{Store: store, Clock: clock.Now})
	require.NoError(t, err)
	return s, store, clock
}
// #endregion helpers

func TestDecay_HalvesPerHalfLife(t *testing.T) {
	r := Record{Strength: 0.8, LastAccess: epoch}
	assert.InDelta(t, 0.8, Decay(r, epoch, time.Hour), 1e-9)
	assert.InDelta(t, 0.4, Decay(r, epoch.Add(time.Hour), time.Hour), 1e-9)
	assert.InDelta(t, 0.2, Decay(r, epoch.Add(2*time.Hour), time.Hour), 1e-9)
	assert.InDelta(t, 0.8, Decay(r, epoch.Add(-time.Hour), time.Hour), 1e-9)
}

func TestStore_Validation(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := s.Store(ctx, Record{Summary: "  ", Importance: 0.5})
	assert.True(t, tickerr.IsCode(err, tickerr.CodeValidation))

	_, err = s.Store(ctx, Record{Summary: "coffee", Importance: 1.5})
	assert.True(t, tickerr.IsCode(err, tickerr.CodeValidation))

	assert.Empty(t, s.ShortTerm())
}

func TestStore_FillsDefaults(t *testing.T) {
	s, _, _ := newTestService(t, nil)

	r, err := s.Store(context.Background(), Record{Summary: "The coffee machine broke", Importance: 0.2})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, epoch, r.Timestamp)
	assert.Equal(t, epoch, r.LastAccess)
	assert.Equal(t, 1.0, r.Strength)
	assert.Contains(t, r.Keywords, "coffee")
	assert.Contains(t, r.Keywords, "machine")
	assert.Len(t, s.ShortTerm(), 1)
}

func TestStore_EvictsOldest(t *testing.T) {
	s, _, _ := newTestService(t, func(c *Config) { c.ShortTermCapacity = 2 })
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Store(ctx, Record{ID: id, Summary: "note " + id, Importance: 0.1})
		require.NoError(t, err)
	}

	got := s.ShortTerm()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestStore_PublishesMemoryStored(t *testing.T) {
	b := bus.New()
	defer b.Close()
	sub := b.Subscribe(4, bus.MemoryStored)

	s, err := New(DefaultConfig(), Options{Bus: b})
	require.NoError(t, err)
	r, err := s.Store(context.Background(), Record{Summary: "lunch with Ada", Importance: 0.4})
	require.NoError(t, err)

	n := <-sub.C()
	assert.Equal(t, r.ID, n.EventID)
}

func TestConsolidate_MigratesStrongRecords(t *testing.T) {
	s, store, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := s.Store(ctx, Record{ID: "strong", Summary: "promotion at work", Importance: 0.9})
	require.NoError(t, err)
	_, err = s.Store(ctx, Record{ID: "weak", Summary: "saw a pigeon", Importance: 0.1})
	require.NoError(t, err)

	n, err := s.Consolidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	long := s.LongTerm()
	require.Len(t, long, 1)
	assert.Equal(t, "strong", long[0].ID)
	assert.True(t, long[0].Consolidated)

	short := s.ShortTerm()
	require.Len(t, short, 1)
	assert.Equal(t, "weak", short[0].ID)

	persisted, err := store.Get(ctx, "strong")
	require.NoError(t, err)
	assert.True(t, persisted.Consolidated)
}

func TestConsolidate_DecayDelaysMigration(t *testing.T) {
	s, _, clock := newTestService(t, func(c *Config) { c.HalfLife = time.Hour })
	ctx := context.Background()
	_, err := s.Store(ctx, Record{ID: "m", Summary: "dentist appointment", Importance: 0.6})
	require.NoError(t, err)

	// 0.6 * 0.5 = 0.3, below 0.35
	clock.Advance(time.Hour)
	n, err := s.Consolidate(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, s.LongTerm())
}

func TestConsolidate_ConflictKeepsRecordsInRing(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := s.Store(ctx, Record{ID: "m", Summary: "moving house", Importance: 0.9})
	require.NoError(t, err)

	s.beforeSwap = func() {
		cur := *s.long.Load()
		cp := make(longTerm, len(cur))
		for k, v := range cur {
			cp[k] = v
		}
		s.long.Store(&cp)
	}
	_, err = s.Consolidate(ctx)
	assert.True(t, tickerr.IsCode(err, tickerr.CodeConcurrencyConflict))
	assert.Len(t, s.ShortTerm(), 1)
	assert.Empty(t, s.LongTerm())

	s.beforeSwap = nil
	n, err := s.Consolidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConsolidate_KeepsBoostTakenMidMigration(t *testing.T) {
	s, store, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := s.Store(ctx, Record{ID: "m", Summary: "moving house", Importance: 0.9})
	require.NoError(t, err)

	s.beforeSwap = func() {
		s.beforeSwap = nil
		res, err := s.Retrieve(ctx, Cue{Text: "moving house"})
		require.NoError(t, err)
		require.Len(t, res.Matches, 1)
		assert.False(t, res.Matches[0].LongTerm)
	}
	n, err := s.Consolidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, s.ShortTerm())

	long := s.LongTerm()
	require.Len(t, long, 1)
	assert.Equal(t, 1, long[0].AccessCount)
	assert.True(t, long[0].Consolidated)

	stored, err := store.Get(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AccessCount)
}

func TestBoostShortTerm_ReportsMigratedIDs(t *testing.T) {
	s, _, clock := newTestService(t, nil)
	ctx := context.Background()
	_, err := s.Store(ctx, Record{ID: "a", Summary: "coffee with Sam", Importance: 0.2})
	require.NoError(t, err)

	gone := s.boostShortTerm([]string{"a", "b"}, clock.Now())
	assert.Equal(t, []string{"b"}, gone)
	assert.Equal(t, 1, s.ShortTerm()[0].AccessCount)
}

func TestRetrieve_ConfidentMatchIsBoosted(t *testing.T) {
	s, _, clock := newTestService(t, func(c *Config) { c.HalfLife = time.Hour })
	ctx := context.Background()
	_, err := s.Store(ctx, Record{ID: "m", Summary: "coffee with Sam", Importance: 0.2})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	res, err := s.Retrieve(ctx, Cue{Text: "what about the coffee"})
	require.NoError(t, err)
	require.False(t, res.NoConfidentMemory)
	require.Len(t, res.Matches, 1)

	m := res.Matches[0]
	assert.InDelta(t, 0.5, m.Strength, 1e-9)
	assert.InDelta(t, 0.65, m.Record.Strength, 1e-9)
	assert.Equal(t, 1, m.Record.AccessCount)
	assert.Equal(t, epoch.Add(time.Hour), m.Record.LastAccess)
	assert.False(t, m.LongTerm)

	short := s.ShortTerm()
	require.Len(t, short, 1)
	assert.InDelta(t, 0.65, short[0].Strength, 1e-9)
	assert.Equal(t, 1, short[0].AccessCount)
}

func TestRetrieve_NoConfidentMemory(t *testing.T) {
	s, _, clock := newTestService(t, func(c *Config) { c.HalfLife = time.Hour })
	ctx := context.Background()
	_, err := s.Store(ctx, Record{Summary: "coffee with Sam", Importance: 0.2})
	require.NoError(t, err)

	res, err := s.Retrieve(ctx, Cue{Text: "the weather yesterday"})
	require.NoError(t, err)
	assert.True(t, res.NoConfidentMemory)
	assert.Empty(t, res.Matches)
	assert.Contains(t, res.ClarifyingQuestion, "weather")

	// matching keyword but faded below the confidence threshold
	clock.Advance(2 * time.Hour)
	res, err = s.Retrieve(ctx, Cue{Text: "coffee"})
	require.NoError(t, err)
	assert.True(t, res.NoConfidentMemory)

	res, err = s.Retrieve(ctx, Cue{Text: "the"})
	require.NoError(t, err)
	assert.True(t, res.NoConfidentMemory)
	assert.NotEmpty(t, res.ClarifyingQuestion)
}

func TestRetrieve_Exclude(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := s.Store(ctx, Record{ID: "self", Summary: "parking ticket", Importance: 0.2})
	require.NoError(t, err)

	res, err := s.Retrieve(ctx, Cue{Text: "parking ticket", Exclude: []string{"self"}})
	require.NoError(t, err)
	assert.True(t, res.NoConfidentMemory)
}

func TestRetrieve_TopKOrderedByScore(t *testing.T) {
	s, _, _ := newTestService(t, func(c *Config) { c.TopK = 2 })
	ctx := context.Background()
	for _, r := range []Record{
		{ID: "one", Summary: "garden tomatoes", Importance: 0.2},
		{ID: "both", Summary: "garden roses tomatoes", Importance: 0.2},
		{ID: "other", Summary: "garden shed", Importance: 0.2},
	} {
		_, err := s.Store(ctx, r)
		require.NoError(t, err)
	}

	res, err := s.Retrieve(ctx, Cue{Keywords: []string{"garden", "tomatoes"}})
	require.NoError(t, err)
	require.Len(t, res.Matches, 2)
	assert.Greater(t, res.Matches[0].Score, res.Matches[1].Score-1e-12)
	ids := []string{res.Matches[0].Record.ID, res.Matches[1].Record.ID}
	assert.ElementsMatch(t, []string{"one", "both"}, ids)
}

func TestRetrieve_EmotionTagRaisesScore(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := s.Store(ctx, Record{ID: "happy", Summary: "beach trip", EmotionTag: "joy", Importance: 0.2})
	require.NoError(t, err)
	_, err = s.Store(ctx, Record{ID: "sad", Summary: "beach storm", EmotionTag: "sadness", Importance: 0.2})
	require.NoError(t, err)

	res, err := s.Retrieve(ctx, Cue{Text: "beach", EmotionTag: "joy"})
	require.NoError(t, err)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, "happy", res.Matches[0].Record.ID)
}

func TestRetrieve_DeduplicatesPreferringLongTerm(t *testing.T) {
	cfg := DefaultConfig()
	clock := &fakeClock{now: epoch}
	store := newFakeStore(Record{ID: "m", Summary: "violin lesson", Keywords: []string{"violin", "lesson"},
		Importance: 0.9, Strength: 1, Timestamp: epoch, LastAccess: epoch})
	s, err := New(cfg, Options{Store: store, Clock: clock.Now})
	require.NoError(t, err)
	ctx := context.Background()

	n, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = s.Store(ctx, Record{ID: "m", Summary: "violin lesson", Importance: 0.2})
	require.NoError(t, err)

	res, err := s.Retrieve(ctx, Cue{Text: "violin"})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.True(t, res.Matches[0].LongTerm)

	persisted, err := store.Get(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, 1, persisted.AccessCount)
}

func TestRetrieve_LongTermConflictIsStale(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := s.Store(ctx, Record{ID: "m", Summary: "marathon finish", Importance: 0.9})
	require.NoError(t, err)
	_, err = s.Consolidate(ctx)
	require.NoError(t, err)

	s.beforeSwap = func() {
		cur := *s.long.Load()
		cp := make(longTerm, len(cur))
		for k, v := range cur {
			cp[k] = v
		}
		s.long.Store(&cp)
	}
	res, err := s.Retrieve(ctx, Cue{Text: "marathon"})
	require.NoError(t, err)
	assert.True(t, res.Stale)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, 0, s.LongTerm()[0].AccessCount)
}

func TestRun_ConsolidatesOnStore(t *testing.T) {
	b := bus.New()
	defer b.Close()
	sub := b.Subscribe(4, bus.MemoryConsolidated)

	s, err := New(DefaultConfig(), Options{Bus: b, Store: newFakeStore()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	_, err = s.Store(context.Background(), Record{Summary: "wedding day", Importance: 1})
	require.NoError(t, err)

	select {
	case n := <-sub.C():
		assert.Equal(t, 1, n.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no consolidation")
	}
	cancel()
	require.NoError(t, <-done)
	assert.Len(t, s.LongTerm(), 1)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.ConfidenceThreshold = 1.5
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Weights = ScoreWeights{}
	assert.Error(t, bad.Validate())
}
