package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region decision-entry
// DecisionEntry is a single row in the decision_log table: what the engine
// decided for one perceived event and why.
type DecisionEntry struct {
	EventID      string
	DecisionType string // "respond" | "act" | "clarify" | "acknowledge"
	Content      string
	Action       string
	Confidence   float64
	Degraded     bool
	Reason       string
	AffectJSON   string
	CreatedAt    time.Time
}
// #endregion decision-entry

// #region log-decision
// LogDecision writes a decision entry to the decision_log table.
func LogDecision(db *sql.DB, entry DecisionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO decision_log (event_id, decision_type, content, action, confidence, degraded, reason, affect_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.EventID,
		entry.DecisionType,
		entry.Content,
		nullIfEmpty(entry.Action),
		entry.Confidence,
		boolToInt(entry.Degraded),
		nullIfEmpty(entry.Reason),
		nullIfEmpty(entry.AffectJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}
// #endregion log-decision

// #region recent-decisions
// RecentDecisions returns up to limit entries, newest first.
func RecentDecisions(db *sql.DB, limit int) ([]DecisionEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(
		`SELECT event_id, decision_type, content, action, confidence, degraded, reason, affect_json, created_at
		 FROM decision_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionEntry
	for rows.Next() {
		var (
			e                          DecisionEntry
			action, reason, affectJSON sql.NullString
			degraded                   int
			created                    string
		)
		if err := rows.Scan(&e.EventID, &e.DecisionType, &e.Content, &action, &e.Confidence, &degraded, &reason, &affectJSON, &created); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.Action = action.String
		e.Reason = reason.String
		e.AffectJSON = affectJSON.String
		e.Degraded = degraded != 0
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion recent-decisions

// #region helpers
func nullIfEmpty(s string) interface{} {
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
