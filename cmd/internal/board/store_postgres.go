package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a TaskStore backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Concurrency model:
// - Group mutations take a per-group transactional advisory lock so two
//   concurrent shared-field updates to one mirror group serialize instead of
//   interleaving partial row sets.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "atelier").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		if !isValidPGIdent(schema) {
			return errors.New("board: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed TaskStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "atelier",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("board: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

const taskColumns = `id, tenant_id, project_id, customer_id, mirror_group_id,
	title, description, members, checklist, attachments,
	status, sort_order, created_at, updated_at, deleted_at`

// GetTask returns a live task by id.
func (s *PostgresStore) GetTask(ctx context.Context, id string) (Task, error) {
	if s == nil || s.pool == nil {
		return Task{}, errors.New("board: nil store")
	}
	if id == "" {
		return Task{}, ErrBadInput
	}

	tasks := pgIdent(s.schema, "tasks")

	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM `+tasks+` WHERE id = $1 AND deleted_at IS NULL`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return t, err
}

// ListGroup returns all live members of a mirror group, ordered by id.
func (s *PostgresStore) ListGroup(ctx context.Context, mirrorGroupID string) ([]Task, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("board: nil store")
	}
	if mirrorGroupID == "" {
		return nil, ErrBadInput
	}

	tasks := pgIdent(s.schema, "tasks")

	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM `+tasks+`
		  WHERE mirror_group_id = $1 AND deleted_at IS NULL
		  ORDER BY id ASC`, mirrorGroupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// CreateTasks inserts all given tasks in one transaction.
func (s *PostgresStore) CreateTasks(ctx context.Context, tasks []Task) error {
	if s == nil || s.pool == nil {
		return errors.New("board: nil store")
	}
	if len(tasks) == 0 {
		return ErrBadInput
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTxFailed, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	table := pgIdent(s.schema, "tasks")

	for _, t := range tasks {
		if t.ID == "" || t.TenantID == "" {
			return ErrBadInput
		}
		checklist, err := json.Marshal(t.Checklist)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+table+` (`+taskColumns+`)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			t.ID, t.TenantID, nullable(t.ProjectID), nullable(t.CustomerID), nullable(t.MirrorGroupID),
			t.Title, t.Description, t.Members, checklist, t.Attachments,
			t.Status, t.Order, t.CreatedAt, t.UpdatedAt, t.DeletedAt,
		); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrTxFailed, err)
	}
	return nil
}

// UpdateGroupShared applies the patch to every member of the group in one
// transaction and returns the updated members. All-or-nothing: any failure
// rolls back the whole group.
func (s *PostgresStore) UpdateGroupShared(ctx context.Context, mirrorGroupID string, fields SharedFields, now time.Time) ([]Task, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("board: nil store")
	}
	if mirrorGroupID == "" {
		return nil, ErrBadInput
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTxFailed, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize all writes per mirror group: concurrent shared-field updates
	// must not interleave across members.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, mirrorGroupID); err != nil {
		return nil, fmt.Errorf("advisory lock: %w", err)
	}

	table := pgIdent(s.schema, "tasks")

	set := `updated_at = $2`
	args := []any{mirrorGroupID, now}
	n := 2

	add := func(col string, v any) {
		n++
		set += fmt.Sprintf(", %s = $%d", col, n)
		args = append(args, v)
	}

	if fields.Title != nil {
		add("title", *fields.Title)
	}
	if fields.Description != nil {
		add("description", *fields.Description)
	}
	if fields.Members != nil {
		add("members", *fields.Members)
	}
	if fields.Checklist != nil {
		checklist, err := json.Marshal(*fields.Checklist)
		if err != nil {
			return nil, err
		}
		add("checklist", checklist)
	}
	if fields.Attachments != nil {
		add("attachments", *fields.Attachments)
	}

	rows, err := tx.Query(ctx,
		`UPDATE `+table+` SET `+set+`
		  WHERE mirror_group_id = $1 AND deleted_at IS NULL
		RETURNING `+taskColumns,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update group: %w", err)
	}
	members, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTxFailed, err)
	}
	return members, nil
}

// UpdateTaskShared applies the patch to a single non-grouped task.
func (s *PostgresStore) UpdateTaskShared(ctx context.Context, id string, fields SharedFields, now time.Time) (Task, error) {
	if s == nil || s.pool == nil {
		return Task{}, errors.New("board: nil store")
	}
	if id == "" {
		return Task{}, ErrBadInput
	}

	table := pgIdent(s.schema, "tasks")

	set := `updated_at = $2`
	args := []any{id, now}
	n := 2

	add := func(col string, v any) {
		n++
		set += fmt.Sprintf(", %s = $%d", col, n)
		args = append(args, v)
	}

	if fields.Title != nil {
		add("title", *fields.Title)
	}
	if fields.Description != nil {
		add("description", *fields.Description)
	}
	if fields.Members != nil {
		add("members", *fields.Members)
	}
	if fields.Checklist != nil {
		checklist, err := json.Marshal(*fields.Checklist)
		if err != nil {
			return Task{}, err
		}
		add("checklist", checklist)
	}
	if fields.Attachments != nil {
		add("attachments", *fields.Attachments)
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE `+table+` SET `+set+`
		  WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+taskColumns,
		args...,
	)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return t, err
}

// UpdatePositions applies status/order changes within a tenant and returns
// the updated rows. Unknown ids are skipped.
func (s *PostgresStore) UpdatePositions(ctx context.Context, tenantID string, changes []PositionChange, now time.Time) ([]Task, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("board: nil store")
	}
	if tenantID == "" {
		return nil, ErrBadInput
	}
	if len(changes) == 0 {
		return nil, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTxFailed, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	table := pgIdent(s.schema, "tasks")

	var out []Task
	for _, c := range changes {
		row := tx.QueryRow(ctx,
			`UPDATE `+table+`
			    SET status = $1, sort_order = $2, updated_at = $3
			  WHERE id = $4 AND tenant_id = $5 AND deleted_at IS NULL
			RETURNING `+taskColumns,
			c.Status, c.Order, now, c.ID, tenantID,
		)
		t, err := scanTask(row)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTxFailed, err)
	}
	return out, nil
}

// SoftDeleteGroup marks every member deleted in one transaction.
func (s *PostgresStore) SoftDeleteGroup(ctx context.Context, mirrorGroupID string, now time.Time) ([]Task, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("board: nil store")
	}
	if mirrorGroupID == "" {
		return nil, ErrBadInput
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTxFailed, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, mirrorGroupID); err != nil {
		return nil, fmt.Errorf("advisory lock: %w", err)
	}

	table := pgIdent(s.schema, "tasks")

	rows, err := tx.Query(ctx,
		`UPDATE `+table+`
		    SET deleted_at = $2, updated_at = $2
		  WHERE mirror_group_id = $1 AND deleted_at IS NULL
		RETURNING `+taskColumns,
		mirrorGroupID, now,
	)
	if err != nil {
		return nil, err
	}
	members, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTxFailed, err)
	}
	return members, nil
}

// SoftDeleteTask marks a single non-grouped task deleted.
func (s *PostgresStore) SoftDeleteTask(ctx context.Context, id string, now time.Time) (Task, error) {
	if s == nil || s.pool == nil {
		return Task{}, errors.New("board: nil store")
	}
	if id == "" {
		return Task{}, ErrBadInput
	}

	table := pgIdent(s.schema, "tasks")

	row := s.pool.QueryRow(ctx,
		`UPDATE `+table+`
		    SET deleted_at = $2, updated_at = $2
		  WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+taskColumns,
		id, now,
	)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return t, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t         Task
		project   *string
		customer  *string
		group     *string
		checklist []byte
	)
	err := row.Scan(
		&t.ID, &t.TenantID, &project, &customer, &group,
		&t.Title, &t.Description, &t.Members, &checklist, &t.Attachments,
		&t.Status, &t.Order, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	if err != nil {
		return Task{}, err
	}
	if project != nil {
		t.ProjectID = *project
	}
	if customer != nil {
		t.CustomerID = *customer
	}
	if group != nil {
		t.MirrorGroupID = *group
	}
	if len(checklist) > 0 {
		if err := json.Unmarshal(checklist, &t.Checklist); err != nil {
			return Task{}, err
		}
	}
	return t, nil
}

func scanTasks(rows pgx.Rows) ([]Task, error) {
	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isValidPGIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
