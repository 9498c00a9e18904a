// Package memory holds the short-term ring of recent records, consolidates
// strong ones into long-term storage and answers cue-based recall.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/affect-tick/internal/bus"
	tickerr "github.com/danielpatrickdp/affect-tick/internal/errors"
	"github.com/danielpatrickdp/affect-tick/internal/lexicon"
)

// #region decay
// Decay returns r's strength at now: Strength halves every halfLife since
// LastAccess. Access in the future counts as no elapsed time.
func Decay(r Record, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return r.Strength
	}
	age := now.Sub(r.LastAccess)
	if age <= 0 {
		return r.Strength
	}
	return r.Strength * math.Exp2(-float64(age)/float64(halfLife))
}
// #endregion decay

// #region service
type longTerm map[string]Record

// Service is the memory retrieval service. Records are immutable values; the
// long-term set is published as an atomic snapshot so readers never observe a
// half-finished migration.
type Service struct {
	cfg   Config
	store PersistentStore
	bus   *bus.Bus
	log   *zap.Logger
	now   func() time.Time

	mu        sync.Mutex
	shortTerm []Record // oldest first

	long    atomic.Pointer[longTerm]
	consoMu sync.Mutex
	kick    chan struct{}

	// beforeSwap runs between building and publishing a long-term snapshot.
	// Tests use it to force a conflicting writer.
	beforeSwap func()
}

// Options are optional collaborators.
type Options struct {
	Store  PersistentStore
	Bus    *bus.Bus
	Logger *zap.Logger
	Clock  func() time.Time
}

// New returns a service with an empty long-term set. Call Load to hydrate it.
func New(cfg Config, opts Options) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	s := &Service{
		cfg:   cfg,
		store: opts.Store,
		bus:   opts.Bus,
		log:   log.Named("memory"),
		now:   clock,
		kick:  make(chan struct{}, 1),
	}
	empty := longTerm{}
	s.long.Store(&empty)
	return s, nil
}

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

// ShortTerm returns a copy of the short-term ring, oldest first.
func (s *Service) ShortTerm() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.shortTerm...)
}

// LongTerm returns the current long-term snapshot as a slice ordered by timestamp.
func (s *Service) LongTerm() []Record {
	m := *s.long.Load()
	out := make([]Record, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Load replaces the long-term snapshot with the newest records from the store.
func (s *Service) Load(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	recs, err := s.store.Query(ctx, Filter{Limit: s.cfg.LoadLimit})
	if err != nil {
		return 0, fmt.Errorf("load long-term memory: %w", err)
	}
	m := make(longTerm, len(recs))
	for _, r := range recs {
		r.Consolidated = true
		m[r.ID] = r
	}
	s.long.Store(&m)
	s.log.Info("long-term memory loaded", zap.Int("records", len(m)))
	return len(m), nil
}
// #endregion service

// #region store
// Store validates r, fills defaults and appends it to the short-term ring.
// It returns the stored record.
func (s *Service) Store(ctx context.Context, r Record) (Record, error) {
	if strings.TrimSpace(r.Summary) == "" {
		return Record{}, tickerr.New(tickerr.CodeValidation, "memory summary is empty")
	}
	if math.IsNaN(r.Importance) || r.Importance < 0 || r.Importance > 1 {
		return Record{}, tickerr.Newf(tickerr.CodeValidation, "memory importance %v outside [0,1]", r.Importance).
			WithMetadata("id", r.ID)
	}
	now := s.now()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	if r.LastAccess.IsZero() {
		r.LastAccess = r.Timestamp
	}
	if r.Strength <= 0 || r.Strength > 1 {
		r.Strength = 1
	}
	if len(r.Keywords) == 0 {
		r.Keywords = lexicon.Tokenize(r.Summary)
	} else {
		r.Keywords = append([]string(nil), r.Keywords...)
	}
	r.Consolidated = false

	s.mu.Lock()
	s.shortTerm = append(s.shortTerm, r)
	var forgotten []Record
	if over := len(s.shortTerm) - s.cfg.ShortTermCapacity; over > 0 {
		forgotten = append(forgotten, s.shortTerm[:over]...)
		s.shortTerm = append([]Record(nil), s.shortTerm[over:]...)
	}
	s.mu.Unlock()

	for _, f := range forgotten {
		s.log.Info("memory forgotten",
			zap.String("id", f.ID),
			zap.Float64("strength", Decay(f, now, s.cfg.HalfLife)),
			zap.Float64("importance", f.Importance))
	}
	s.log.Debug("memory stored", zap.String("id", r.ID), zap.Strings("keywords", r.Keywords))
	s.publish(bus.MemoryStored, r.ID, r)

	select {
	case s.kick <- struct{}{}:
	default:
	}
	return r, nil
}
// #endregion store

// #region consolidate
// Consolidate migrates every short-term record whose importance times decayed
// strength reaches the threshold. Order: persist, publish the new long-term
// snapshot, then drop from the ring. It returns the number migrated.
func (s *Service) Consolidate(ctx context.Context) (int, error) {
	s.consoMu.Lock()
	defer s.consoMu.Unlock()

	now := s.now()
	s.mu.Lock()
	var batch []Record
	for _, r := range s.shortTerm {
		if r.Importance*Decay(r, now, s.cfg.HalfLife) >= s.cfg.ConsolidationThreshold {
			r.Consolidated = true
			batch = append(batch, r)
		}
	}
	s.mu.Unlock()
	if len(batch) == 0 {
		return 0, nil
	}

	if s.store != nil {
		for _, r := range batch {
			if err := s.store.Put(ctx, r); err != nil {
				return 0, fmt.Errorf("persist memory %s: %w", r.ID, err)
			}
		}
	}

	if err := s.swapLongTerm(func(m longTerm) {
		for _, r := range batch {
			if cur, ok := m[r.ID]; ok && cur.AccessCount > r.AccessCount {
				continue
			}
			m[r.ID] = r
		}
	}); err != nil {
		return 0, err
	}

	migrated := make(map[string]Record, len(batch))
	for _, r := range batch {
		migrated[r.ID] = r
	}
	// a retrieval may have boosted a ring copy after the batch was taken
	var fresher []Record
	s.mu.Lock()
	kept := s.shortTerm[:0:0]
	for _, r := range s.shortTerm {
		b, ok := migrated[r.ID]
		if !ok {
			kept = append(kept, r)
			continue
		}
		if r.AccessCount > b.AccessCount {
			r.Consolidated = true
			fresher = append(fresher, r)
		}
	}
	s.shortTerm = kept
	s.mu.Unlock()
	if len(fresher) > 0 {
		s.carryBoosts(ctx, fresher)
	}

	s.log.Info("memory consolidated", zap.Int("records", len(batch)))
	s.publish(bus.MemoryConsolidated, "", len(batch))
	return len(batch), nil
}

// carryBoosts publishes ring copies that were boosted while their records
// migrated, unless the long-term copy is already at least as fresh.
func (s *Service) carryBoosts(ctx context.Context, recs []Record) {
	var written []Record
	err := s.swapLongTerm(func(m longTerm) {
		written = written[:0]
		for _, r := range recs {
			if cur, ok := m[r.ID]; ok && cur.AccessCount >= r.AccessCount {
				continue
			}
			m[r.ID] = r
			written = append(written, r)
		}
	})
	if err != nil {
		ids := make([]string, len(recs))
		for i, r := range recs {
			ids[i] = r.ID
		}
		s.log.Warn("retrieval boost lost during consolidation", zap.Strings("ids", ids), zap.Error(err))
		return
	}
	s.persist(ctx, written)
}

// swapLongTerm applies edit to a copy of the long-term snapshot and publishes
// it with compare-and-swap. A lost race is retried once.
func (s *Service) swapLongTerm(edit func(longTerm)) error {
	for attempt := 0; attempt < 2; attempt++ {
		old := s.long.Load()
		next := make(longTerm, len(*old)+1)
		for k, v := range *old {
			next[k] = v
		}
		edit(next)
		if s.beforeSwap != nil {
			s.beforeSwap()
		}
		if s.long.CompareAndSwap(old, &next) {
			return nil
		}
		s.log.Debug("long-term snapshot changed, retrying", zap.Int("attempt", attempt+1))
	}
	return tickerr.New(tickerr.CodeConcurrencyConflict, "long-term snapshot changed during update")
}
// #endregion consolidate

// #region retrieve
type candidate struct {
	rec      Record
	score    float64
	strength float64
	longTerm bool
}

// Retrieve returns up to TopK confident recalls for cue. A record qualifies
// when it shares at least one keyword with the cue and both its score and its
// decayed strength reach ConfidenceThreshold. Matches are boosted and their
// decay clock reset.
func (s *Service) Retrieve(ctx context.Context, cue Cue) (Result, error) {
	now := cue.Now
	if now.IsZero() {
		now = s.now()
	}
	keywords := cue.Keywords
	if len(keywords) == 0 {
		keywords = lexicon.Tokenize(cue.Text)
	}
	if len(keywords) == 0 {
		return noConfidence(nil), nil
	}

	pool := make(map[string]candidate)
	for _, r := range s.ShortTerm() {
		pool[r.ID] = candidate{rec: r}
	}
	for id, r := range *s.long.Load() {
		pool[id] = candidate{rec: r, longTerm: true}
	}
	for _, id := range cue.Exclude {
		delete(pool, id)
	}

	var hits []candidate
	for _, c := range pool {
		overlap := math.Min(1, float64(lexicon.SharedKeywords(keywords, c.rec.Keywords))/float64(len(keywords)))
		if overlap == 0 {
			continue
		}
		c.strength = Decay(c.rec, now, s.cfg.HalfLife)
		c.score = s.score(c.rec, overlap, cue.EmotionTag, now)
		if c.score < s.cfg.ConfidenceThreshold || c.strength < s.cfg.ConfidenceThreshold {
			continue
		}
		hits = append(hits, c)
	}
	if len(hits) == 0 {
		return noConfidence(keywords), nil
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].rec.Timestamp.After(hits[j].rec.Timestamp)
	})
	if len(hits) > s.cfg.TopK {
		hits = hits[:s.cfg.TopK]
	}

	res := Result{Matches: make([]Match, 0, len(hits))}
	var shortIDs, longIDs []string
	for _, h := range hits {
		boosted := s.boost(h.rec, h.strength, now)
		res.Matches = append(res.Matches, Match{Record: boosted, Score: h.score, Strength: h.strength, LongTerm: h.longTerm})
		if h.longTerm {
			longIDs = append(longIDs, h.rec.ID)
		} else {
			shortIDs = append(shortIDs, h.rec.ID)
		}
	}

	if len(shortIDs) > 0 {
		// records consolidated since the pool was read are boosted in long-term
		longIDs = append(longIDs, s.boostShortTerm(shortIDs, now)...)
	}
	if len(longIDs) > 0 {
		persisted, err := s.boostLongTerm(longIDs, now)
		if err != nil {
			if !tickerr.IsCode(err, tickerr.CodeConcurrencyConflict) {
				return res, err
			}
			s.log.Warn("retrieval boost lost a concurrent update", zap.Strings("ids", longIDs))
			res.Stale = true
		}
		s.persist(ctx, persisted)
	}
	return res, nil
}

func (s *Service) score(r Record, overlap float64, emotion string, now time.Time) float64 {
	w := s.cfg.Weights
	age := now.Sub(r.LastAccess)
	if age < 0 {
		age = 0
	}
	recency := math.Exp2(-float64(age) / float64(s.cfg.HalfLife))
	frequency := 1 - 1/(1+float64(r.AccessCount))

	sum := w.Overlap*overlap + w.Recency*recency + w.Frequency*frequency
	total := w.Overlap + w.Recency + w.Frequency
	if emotion != "" {
		total += w.Emotion
		if strings.EqualFold(emotion, r.EmotionTag) {
			sum += w.Emotion
		}
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

func (s *Service) boost(r Record, decayed float64, now time.Time) Record {
	r.Strength = math.Min(1, decayed+s.cfg.RetrievalBoost)
	r.LastAccess = now
	r.AccessCount++
	return r
}

func (s *Service) boostShortTerm(ids []string, now time.Time) []string {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.shortTerm {
		if want[r.ID] {
			s.shortTerm[i] = s.boost(r, Decay(r, now, s.cfg.HalfLife), now)
			delete(want, r.ID)
		}
	}
	var gone []string
	for _, id := range ids {
		if want[id] {
			gone = append(gone, id)
		}
	}
	return gone
}

// boostLongTerm applies the retrieval boost to the long-term copies of ids and
// returns the boosted records that were published.
func (s *Service) boostLongTerm(ids []string, now time.Time) ([]Record, error) {
	var boosted []Record
	err := s.swapLongTerm(func(m longTerm) {
		boosted = boosted[:0]
		for _, id := range ids {
			r, ok := m[id]
			if !ok {
				continue
			}
			r = s.boost(r, Decay(r, now, s.cfg.HalfLife), now)
			m[id] = r
			boosted = append(boosted, r)
		}
	})
	if err != nil {
		return nil, err
	}
	return boosted, nil
}

func (s *Service) persist(ctx context.Context, recs []Record) {
	if s.store == nil {
		return
	}
	for _, r := range recs {
		if err := s.store.Put(ctx, r); err != nil {
			s.log.Warn("persist boosted memory", zap.String("id", r.ID), zap.Error(err))
		}
	}
}

func noConfidence(keywords []string) Result {
	q := "I don't have a clear memory of that. What are you referring to?"
	if len(keywords) > 0 {
		if len(keywords) > 3 {
			keywords = keywords[:3]
		}
		q = fmt.Sprintf("I don't have a clear memory of %s. Can you remind me?", strings.Join(keywords, ", "))
	}
	return Result{NoConfidentMemory: true, ClarifyingQuestion: q}
}
// #endregion retrieve

// #region run
// Run consolidates whenever Store kicks it and on a safety ticker, until ctx
// is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ConsolidateEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.kick:
		case <-ticker.C:
		}
		if _, err := s.Consolidate(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("consolidation failed", zap.Error(err))
		}
	}
}

func (s *Service) publish(kind bus.Kind, id string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Notification{Kind: kind, EventID: id, Payload: payload})
}
// #endregion run
