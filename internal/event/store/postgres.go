package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"registrar/internal/event/models"
	id "registrar/pkg/domain"
	"registrar/pkg/platform/sentinel"
	txcontext "registrar/pkg/platform/tx"
)

// Postgres persists event documents in two tables: a header row carrying the
// action count (the optimistic-concurrency token) and one row per action.
// Appends lock the header row FOR UPDATE so concurrent writers to the same
// event serialize, then fail fast on a stale expected version.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id UUID PRIMARY KEY,
	type TEXT NOT NULL,
	action_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS event_actions (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL REFERENCES events(id),
	seq INTEGER NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	declaration JSONB,
	created_by UUID NOT NULL,
	created_at_location TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	transaction_id TEXT NOT NULL DEFAULT '',
	request_id UUID,
	assigned_to UUID,
	keep_assignment BOOLEAN NOT NULL DEFAULT FALSE,
	reason TEXT NOT NULL DEFAULT '',
	origin TEXT NOT NULL DEFAULT 'user',
	UNIQUE (event_id, seq)
);

CREATE UNIQUE INDEX IF NOT EXISTS event_actions_transaction
	ON event_actions (event_id, transaction_id)
	WHERE transaction_id <> '';
`

// EnsureSchema creates the tables if they do not exist yet.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure events schema: %w", err)
	}
	return nil
}

func (s *Postgres) Create(ctx context.Context, doc *models.EventDocument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create event: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (id, type, action_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.UUID(doc.ID), doc.Type, len(doc.Actions), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert event: %w", err)
	}
	for seq, action := range doc.Actions {
		if err := insertAction(ctx, tx, doc.ID, seq, action); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create event: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, eventID id.EventID) (*models.EventDocument, error) {
	q := s.querier(ctx)

	doc := &models.EventDocument{}
	var rawID uuid.UUID
	err := q.QueryRowContext(ctx,
		`SELECT id, type, created_at, updated_at FROM events WHERE id = $1`,
		uuid.UUID(eventID),
	).Scan(&rawID, &doc.Type, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select event: %w", err)
	}
	doc.ID = id.EventID(rawID)

	rows, err := q.QueryContext(ctx,
		`SELECT id, type, status, declaration, created_by, created_at_location,
		        created_at, transaction_id, request_id, assigned_to,
		        keep_assignment, reason, origin
		 FROM event_actions WHERE event_id = $1 ORDER BY seq`,
		uuid.UUID(eventID),
	)
	if err != nil {
		return nil, fmt.Errorf("select event actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		doc.Actions = append(doc.Actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event actions: %w", err)
	}
	return doc, nil
}

func (s *Postgres) Append(ctx context.Context, eventID id.EventID, expectedVersion int, actions ...models.Action) error {
	run := func(tx *sql.Tx) error {
		var current int
		err := tx.QueryRowContext(ctx,
			`SELECT action_count FROM events WHERE id = $1 FOR UPDATE`,
			uuid.UUID(eventID),
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock event row: %w", err)
		}
		if current != expectedVersion {
			return sentinel.ErrVersionConflict
		}

		for i, action := range actions {
			if err := insertAction(ctx, tx, eventID, expectedVersion+i, action); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE events SET action_count = $2, updated_at = $3 WHERE id = $1`,
			uuid.UUID(eventID), expectedVersion+len(actions), latestCreatedAt(actions),
		)
		if err != nil {
			return fmt.Errorf("bump event version: %w", err)
		}
		return nil
	}

	if tx, ok := txcontext.From(ctx); ok {
		return run(tx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := run(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func (s *Postgres) FindActionByTransaction(ctx context.Context, eventID id.EventID, transactionID string) (models.Action, error) {
	if transactionID == "" {
		return models.Action{}, sentinel.ErrNotFound
	}
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT id, type, status, declaration, created_by, created_at_location,
		        created_at, transaction_id, request_id, assigned_to,
		        keep_assignment, reason, origin
		 FROM event_actions WHERE event_id = $1 AND transaction_id = $2`,
		uuid.UUID(eventID), transactionID,
	)
	action, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Action{}, sentinel.ErrNotFound
	}
	return action, err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Postgres) querier(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func insertAction(ctx context.Context, tx *sql.Tx, eventID id.EventID, seq int, action models.Action) error {
	var declaration []byte
	if len(action.Declaration) > 0 {
		var err error
		declaration, err = json.Marshal(action.Declaration)
		if err != nil {
			return fmt.Errorf("marshal declaration: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO event_actions
		   (id, event_id, seq, type, status, declaration, created_by,
		    created_at_location, created_at, transaction_id, request_id,
		    assigned_to, keep_assignment, reason, origin)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		uuid.UUID(action.ID), uuid.UUID(eventID), seq, string(action.Type),
		string(action.Status), declaration, uuid.UUID(action.CreatedBy),
		string(action.CreatedAtLocation), action.CreatedAt, action.TransactionID,
		nullableUUID(uuid.UUID(action.RequestID)), nullableUUID(uuid.UUID(action.AssignedTo)),
		action.KeepAssignment, action.Reason, string(action.Origin),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrDuplicateTransaction
		}
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (models.Action, error) {
	var (
		action      models.Action
		actionID    uuid.UUID
		actionType  string
		status      string
		declaration []byte
		createdBy   uuid.UUID
		location    string
		requestID   uuid.NullUUID
		assignedTo  uuid.NullUUID
		origin      string
	)
	err := row.Scan(&actionID, &actionType, &status, &declaration, &createdBy,
		&location, &action.CreatedAt, &action.TransactionID, &requestID,
		&assignedTo, &action.KeepAssignment, &action.Reason, &origin)
	if err != nil {
		return models.Action{}, err
	}

	action.ID = id.ActionID(actionID)
	action.Type = models.ActionType(actionType)
	action.Status = models.ActionStatus(status)
	action.CreatedBy = id.UserID(createdBy)
	action.CreatedAtLocation = id.LocationID(location)
	action.Origin = models.ActionOrigin(origin)
	if requestID.Valid {
		action.RequestID = id.ActionID(requestID.UUID)
	}
	if assignedTo.Valid {
		action.AssignedTo = id.UserID(assignedTo.UUID)
	}
	if len(declaration) > 0 {
		if err := json.Unmarshal(declaration, &action.Declaration); err != nil {
			return models.Action{}, fmt.Errorf("unmarshal declaration: %w", err)
		}
	}
	return action, nil
}

func nullableUUID(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u
}

func latestCreatedAt(actions []models.Action) time.Time {
	latest := time.Now().UTC()
	for _, a := range actions {
		if a.CreatedAt.After(latest) {
			latest = a.CreatedAt
		}
	}
	return latest
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
