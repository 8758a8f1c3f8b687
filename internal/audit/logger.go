package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Entry represents a structured audit event for the OAuth lifecycle.
type Entry struct {
	Action     string
	ClientID   *uuid.UUID
	UserID     *uuid.UUID
	Context    map[string]any
	OccurredAt time.Time
}

// Logger writes audit entries into the database.
type Logger struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// New constructs a Logger. A nil Logger is valid and records nothing, which
// keeps the services testable without a database.
func New(db *pgxpool.Pool, logger *zap.Logger) *Logger {
	return &Logger{db: db, logger: logger}
}

// Record persists an audit entry, logging failures but not interrupting flows.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	if l == nil || entry.Action == "" {
		return
	}

	var payload []byte
	if entry.Context != nil {
		var err error
		payload, err = json.Marshal(entry.Context)
		if err != nil {
			l.logger.Warn("failed to encode audit context", zap.Error(err))
			payload = nil
		}
	}

	const query = `INSERT INTO oauth_audit_log (id, action, client_id, user_id, context, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	if _, err := l.db.Exec(ctx, query, uuid.New(), entry.Action, entry.ClientID, entry.UserID, payload, occurredAt); err != nil {
		l.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
