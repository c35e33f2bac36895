// Package audit provides an append-only audit trail for agent activity.
//
// Every security-relevant action (redaction hits, transfer staging and
// execution, remote dispatches, unexpected errors) produces an Event that
// is persisted in SQLite. Metadata never contains raw sensitive text; when
// original content matters, callers store a one-way hash via HashText.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	arcotel "github.com/sriscode/MobileArc/internal/otel"
)

var tracer = arcotel.Tracer("github.com/sriscode/MobileArc/internal/audit")

// asyncWriteTimeout bounds detached writes so a wedged sink cannot leak goroutines.
const asyncWriteTimeout = 5 * time.Second

// Event is a single append-only audit record.
type Event struct {
	ID        string            `json:"id"`
	Name      string            `json:"event"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

// Logger persists audit events in SQLite with append-only semantics.
type Logger struct {
	db *sql.DB
}

// NewLogger opens (creating if needed) the audit database at dbPath.
func NewLogger(dbPath string) (*Logger, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		event TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		metadata TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_event ON audit_events(event);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	return &Logger{db: db}, nil
}

// Log appends an event. Metadata must never contain raw sensitive text.
func (l *Logger) Log(ctx context.Context, event string, metadata map[string]string) error {
	ctx, span := tracer.Start(ctx, "audit.log")
	defer span.End()
	span.SetAttributes(attribute.String("audit.event", event))

	if metadata == nil {
		metadata = map[string]string{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshalling audit metadata: %w", err)
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, event, timestamp, metadata) VALUES (?, ?, ?, ?)`,
		"evt_"+uuid.New().String()[:8], event, time.Now().UTC(), string(meta))
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// LogAsync appends an event on a detached goroutine. Sink failures are logged
// and swallowed; they must never surface to the caller's flow. The write is
// decoupled from the caller's cancellation so in-flight records complete.
func (l *Logger) LogAsync(ctx context.Context, event string, metadata map[string]string) {
	detached := context.WithoutCancel(ctx)
	go func() {
		writeCtx, cancel := context.WithTimeout(detached, asyncWriteTimeout)
		defer cancel()
		if err := l.Log(writeCtx, event, metadata); err != nil {
			log.Error().Err(err).Str("event", event).Msg("audit_write_failed")
		}
	}()
}

// Recent returns the most recent events, newest first.
func (l *Logger) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, event, timestamp, metadata FROM audit_events ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var meta string
		if err := rows.Scan(&e.ID, &e.Name, &e.Timestamp, &meta); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling audit metadata: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the underlying database.
func (l *Logger) Close() error {
	return l.db.Close()
}

// HashText returns a one-way SHA-256 digest of s, prefixed with the
// algorithm name. Audit metadata stores these instead of original text.
func HashText(s string) string {
	h := sha256.Sum256([]byte(s))
	return "sha256:" + hex.EncodeToString(h[:])
}
