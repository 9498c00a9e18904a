// Package store persists consolidated memories, inner-dialogue turns and
// decisions in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/affect-tick/internal/dialogue"
	tickerr "github.com/danielpatrickdp/affect-tick/internal/errors"
	"github.com/danielpatrickdp/affect-tick/internal/logging"
	"github.com/danielpatrickdp/affect-tick/internal/memory"
	"github.com/danielpatrickdp/affect-tick/internal/personality"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id            TEXT PRIMARY KEY,
	timestamp     TEXT NOT NULL,
	summary       TEXT NOT NULL,
	keywords      TEXT NOT NULL,
	emotion_tag   TEXT,
	importance    REAL NOT NULL,
	strength      REAL NOT NULL,
	last_access   TEXT NOT NULL,
	access_count  INTEGER NOT NULL DEFAULT 0,
	consolidated  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_memories_timestamp ON memories(timestamp);

CREATE TABLE IF NOT EXISTS inner_turns (
	id               TEXT PRIMARY KEY,
	root_id          TEXT NOT NULL,
	event_id         TEXT,
	parent_turn_id   TEXT,
	lane             TEXT NOT NULL,
	function         TEXT NOT NULL,
	proposal         TEXT NOT NULL,
	original         TEXT,
	scores_json      TEXT NOT NULL,
	overall          REAL NOT NULL,
	decision         TEXT NOT NULL,
	reason           TEXT,
	chain_length     INTEGER NOT NULL,
	reframe_applied  INTEGER NOT NULL,
	reframe_type     TEXT,
	safety_triggered INTEGER NOT NULL,
	created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_inner_turns_root ON inner_turns(root_id);

CREATE TABLE IF NOT EXISTS decision_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id      TEXT NOT NULL,
	decision_type TEXT NOT NULL,
	content       TEXT NOT NULL,
	action        TEXT,
	confidence    REAL NOT NULL,
	degraded      INTEGER NOT NULL,
	reason        TEXT,
	affect_json   TEXT,
	created_at    TEXT NOT NULL
);
`
// #endregion schema

// #region store-struct
// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion constructor

// #region memories
// Put upserts a memory record.
func (s *Store) Put(ctx context.Context, r memory.Record) error {
	kw, err := json.Marshal(r.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (id, timestamp, summary, keywords, emotion_tag, importance, strength, last_access, access_count, consolidated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			summary = excluded.summary,
			keywords = excluded.keywords,
			emotion_tag = excluded.emotion_tag,
			importance = excluded.importance,
			strength = excluded.strength,
			last_access = excluded.last_access,
			access_count = excluded.access_count,
			consolidated = excluded.consolidated`,
		r.ID,
		formatTime(r.Timestamp),
		r.Summary,
		string(kw),
		nullIfEmpty(r.EmotionTag),
		r.Importance,
		r.Strength,
		formatTime(r.LastAccess),
		r.AccessCount,
		boolToInt(r.Consolidated),
	)
	if err != nil {
		return fmt.Errorf("put memory %s: %w", r.ID, err)
	}
	return nil
}

const memoryColumns = `id, timestamp, summary, keywords, emotion_tag, importance, strength, last_access, access_count, consolidated`

// Get returns the memory with id, or a CodeNotFound error.
func (s *Store) Get(ctx context.Context, id string) (memory.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	r, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return memory.Record{}, tickerr.Newf(tickerr.CodeNotFound, "memory %s", id)
	}
	return r, err
}

// Query returns memories matching f, newest first.
func (s *Store) Query(ctx context.Context, f memory.Filter) ([]memory.Record, error) {
	var (
		where []string
		args  []any
	)
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, formatTime(f.Since))
	}
	if f.EmotionTag != "" {
		where = append(where, "emotion_tag = ?")
		args = append(args, f.EmotionTag)
	}
	if f.MinImportance > 0 {
		where = append(where, "importance >= ?")
		args = append(args, f.MinImportance)
	}
	q := `SELECT ` + memoryColumns + ` FROM memories`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY timestamp DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var out []memory.Record
	for rows.Next() {
		r, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(sc scanner) (memory.Record, error) {
	var (
		r            memory.Record
		ts, last, kw string
		emotion      sql.NullString
		consolidated int
	)
	if err := sc.Scan(&r.ID, &ts, &r.Summary, &kw, &emotion, &r.Importance, &r.Strength, &last, &r.AccessCount, &consolidated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return memory.Record{}, err
		}
		return memory.Record{}, fmt.Errorf("scan memory: %w", err)
	}
	if err := json.Unmarshal([]byte(kw), &r.Keywords); err != nil {
		return memory.Record{}, fmt.Errorf("unmarshal keywords for %s: %w", r.ID, err)
	}
	r.EmotionTag = emotion.String
	r.Consolidated = consolidated != 0
	r.Timestamp = parseTime(ts)
	r.LastAccess = parseTime(last)
	return r, nil
}
// #endregion memories

// #region turns
// SaveTurn persists an inner-dialogue turn.
func (s *Store) SaveTurn(ctx context.Context, t dialogue.InnerTurn) error {
	scores, err := json.Marshal(t.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO inner_turns (id, root_id, event_id, parent_turn_id, lane, function, proposal, original,
			scores_json, overall, decision, reason, chain_length, reframe_applied, reframe_type, safety_triggered, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.RootID,
		nullIfEmpty(t.EventID),
		nullIfEmpty(t.ParentTurnID),
		string(t.Lane),
		string(t.Function),
		t.Proposal,
		nullIfEmpty(t.Original),
		string(scores),
		t.Overall,
		string(t.Decision),
		nullIfEmpty(t.Reason),
		t.ChainLength,
		boolToInt(t.ReframeApplied),
		nullIfEmpty(t.ReframeType),
		boolToInt(t.SafetyTriggered),
		formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save turn %s: %w", t.ID, err)
	}
	return nil
}

// RecentTurns returns up to limit turns, newest first.
func (s *Store) RecentTurns(ctx context.Context, limit int) ([]dialogue.InnerTurn, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, root_id, event_id, parent_turn_id, lane, function, proposal, original, scores_json,
			overall, decision, reason, chain_length, reframe_applied, reframe_type, safety_triggered, created_at
		 FROM inner_turns ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []dialogue.InnerTurn
	for rows.Next() {
		var (
			t                                         dialogue.InnerTurn
			eventID, parent, original, reason, rtype  sql.NullString
			lane, function, scores, decision, created string
			reframed, safety                          int
		)
		if err := rows.Scan(&t.ID, &t.RootID, &eventID, &parent, &lane, &function, &t.Proposal, &original, &scores,
			&t.Overall, &decision, &reason, &t.ChainLength, &reframed, &rtype, &safety, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if err := json.Unmarshal([]byte(scores), &t.Scores); err != nil {
			return nil, fmt.Errorf("unmarshal scores for %s: %w", t.ID, err)
		}
		t.EventID = eventID.String
		t.ParentTurnID = parent.String
		t.Original = original.String
		t.Reason = reason.String
		t.ReframeType = rtype.String
		t.Lane = personality.Lane(lane)
		t.Function = personality.Function(function)
		t.Decision = dialogue.Decision(decision)
		t.ReframeApplied = reframed != 0
		t.SafetyTriggered = safety != 0
		t.CreatedAt = parseTime(created)
		out = append(out, t)
	}
	return out, rows.Err()
}
// #endregion turns

// #region decisions
// LogDecision appends to the decision log.
func (s *Store) LogDecision(_ context.Context, e logging.DecisionEntry) error {
	return logging.LogDecision(s.db, e)
}

// RecentDecisions returns up to limit decisions, newest first.
func (s *Store) RecentDecisions(limit int) ([]logging.DecisionEntry, error) {
	return logging.RecentDecisions(s.db, limit)
}
// #endregion decisions

// #region helpers
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
// #endregion helpers
