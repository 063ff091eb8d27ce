// Package journal records one row per tool invocation. It is an
// observability surface around the dispatcher, which itself stays
// stateless; recording happens in the CLI and relay layers.
package journal

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/mattjoyce/supactl/internal/dispatch"
	"github.com/mattjoyce/supactl/internal/jval"
	"github.com/mattjoyce/supactl/internal/log"
)

const maxStderrBytes = 64 * 1024

// timeLayout is RFC3339 with a fixed nine-digit fraction. RFC3339Nano
// trims trailing zeros, which breaks the string comparisons the table
// orders and prunes by.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Status classifies a recorded call.
type Status string

const (
	StatusOK         Status = "ok"
	StatusRemote     Status = "remote_error"
	StatusTimeout    Status = "timeout"
	StatusInvocation Status = "invocation_error"
	StatusDecode     Status = "decode_error"
)

// Entry is one recorded invocation.
type Entry struct {
	ID          string
	Operation   string
	Arguments   string // argument JSON as sent
	Fingerprint string // blake3 over operation + argument JSON
	Status      Status
	Code        int
	Message     string
	Stderr      string
	Duration    time.Duration
	CreatedAt   time.Time
}

// Journal is the sqlite-backed call log.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Journal on an opened database.
func New(db *sql.DB) *Journal {
	return &Journal{db: db, logger: log.WithComponent("journal")}
}

// Fingerprint returns the blake3 fingerprint for an operation and its
// serialized arguments. Identical calls share a fingerprint.
func Fingerprint(operation, arguments string) string {
	sum := blake3.Sum256([]byte(operation + "\n" + arguments))
	return "blake3:" + hex.EncodeToString(sum[:])
}

// NewEntry builds a journal entry from an invocation outcome. err is
// the error returned by the dispatcher (nil on success).
func NewEntry(operation string, args *jval.Value, duration time.Duration, err error) Entry {
	arguments := "{}"
	if args != nil {
		arguments = args.String()
	}

	e := Entry{
		Operation:   operation,
		Arguments:   arguments,
		Fingerprint: Fingerprint(operation, arguments),
		Status:      StatusOK,
		Duration:    duration,
	}
	if err == nil {
		return e
	}

	var de *dispatch.Error
	if errors.As(err, &de) {
		e.Code = de.Code
		e.Message = de.Message
		e.Stderr = de.Stderr
		switch de.Kind {
		case dispatch.KindTimeout:
			e.Status = StatusTimeout
		case dispatch.KindRemote:
			e.Status = StatusRemote
		case dispatch.KindDecode:
			e.Status = StatusDecode
		default:
			e.Status = StatusInvocation
		}
		return e
	}

	e.Status = StatusInvocation
	e.Code = dispatch.CodeInvocation
	e.Message = err.Error()
	return e
}

// Record inserts an entry, assigning id and timestamp when unset.
func (j *Journal) Record(ctx context.Context, e Entry) (string, error) {
	if e.Operation == "" {
		return "", fmt.Errorf("operation is empty")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if len(e.Stderr) > maxStderrBytes {
		e.Stderr = e.Stderr[:maxStderrBytes]
	}

	_, err := j.db.ExecContext(ctx, `
INSERT INTO call_log(
  id, operation, arguments, fingerprint, status, code, message, stderr, duration_ms, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.Operation, e.Arguments, e.Fingerprint, string(e.Status), e.Code, e.Message, e.Stderr,
		e.Duration.Milliseconds(), e.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("record call: %w", err)
	}
	return e.ID, nil
}

// Recent returns the newest entries, most recent first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx, `
SELECT id, operation, arguments, fingerprint, status, code, message, stderr, duration_ms, created_at
FROM call_log
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			status     string
			message    sql.NullString
			stderr     sql.NullString
			durationMS int64
			createdAtS string
		)
		if err := rows.Scan(&e.ID, &e.Operation, &e.Arguments, &e.Fingerprint, &status,
			&e.Code, &message, &stderr, &durationMS, &createdAtS); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Status = Status(status)
		e.Message = message.String
		e.Stderr = stderr.String
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if ts, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			e.CreatedAt = ts
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}
	return out, nil
}

// Prune deletes entries older than retention and returns the count.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-retention).Format(timeLayout)
	res, err := j.db.ExecContext(ctx, `DELETE FROM call_log WHERE created_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune journal rows affected: %w", err)
	}
	if n > 0 {
		j.logger.Info("pruned journal entries", "count", n)
	}
	return n, nil
}
