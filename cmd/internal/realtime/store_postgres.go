package realtime

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/cmd/internal/ids"
)

// PostgresStore is a MessageStore backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "atelier").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("realtime: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("realtime: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed MessageStore.
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
		return nil, errors.New("realtime: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// CreateMessage inserts a message with idempotency per (room_id, client_msg_id).
func (s *PostgresStore) CreateMessage(ctx context.Context, in CreateMessageInput) (CreateMessageResult, error) {
	if s == nil || s.pool == nil {
		return CreateMessageResult{}, errors.New("realtime: nil store")
	}
	if in.RoomID == "" || in.TenantID == "" || in.UserID == "" || in.ClientMsgID == "" {
		return CreateMessageResult{}, ErrBadInput
	}
	if err := ctx.Err(); err != nil {
		return CreateMessageResult{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return CreateMessageResult{}, err
	}

	messages := pgIdent(s.schema, "messages")

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO `+messages+` (
		     id, room_id, tenant_id, user_id, client_msg_id, content, attachments, status, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		   ON CONFLICT (room_id, client_msg_id) DO NOTHING`,
		id, in.RoomID, in.TenantID, in.UserID, in.ClientMsgID, in.Content, in.Attachments, string(StatusSent), now,
	)
	if err != nil {
		return CreateMessageResult{}, fmt.Errorf("insert message: %w", err)
	}

	if tag.RowsAffected() == 0 {
		existing, err := s.readByClientMsgID(ctx, in.RoomID, in.ClientMsgID)
		if err != nil {
			return CreateMessageResult{}, err
		}
		return CreateMessageResult{Stored: existing, Duplicated: true}, nil
	}

	return CreateMessageResult{
		Stored: Message{
			ID:          id,
			RoomID:      in.RoomID,
			UserID:      in.UserID,
			TenantID:    in.TenantID,
			Content:     in.Content,
			Attachments: append([]string(nil), in.Attachments...),
			Status:      StatusSent,
			CreatedAt:   now,
		},
	}, nil
}

// SoftDeleteMessage marks a message deleted; only its author may delete it.
func (s *PostgresStore) SoftDeleteMessage(ctx context.Context, roomID, messageID, userID string) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("realtime: nil store")
	}
	if roomID == "" || messageID == "" || userID == "" {
		return Message{}, ErrBadInput
	}

	messages := pgIdent(s.schema, "messages")

	var m Message
	var status string
	err := s.pool.QueryRow(ctx,
		`UPDATE `+messages+`
		    SET deleted_at = now()
		  WHERE room_id = $1 AND id = $2 AND user_id = $3 AND deleted_at IS NULL
		RETURNING id, room_id, tenant_id, user_id, content, attachments, status, created_at, deleted_at`,
		roomID, messageID, userID,
	).Scan(&m.ID, &m.RoomID, &m.TenantID, &m.UserID, &m.Content, &m.Attachments, &status, &m.CreatedAt, &m.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either missing or owned by someone else; distinguish for the caller.
		var one int
		probe := s.pool.QueryRow(ctx,
			`SELECT 1 FROM `+messages+` WHERE room_id = $1 AND id = $2 AND deleted_at IS NULL`,
			roomID, messageID,
		).Scan(&one)
		if probe == nil {
			return Message{}, ErrNotOwner
		}
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}
	m.Status = MessageStatus(status)
	return m, nil
}

// AdvanceStatus moves messages forward monotonically in one statement and
// returns the ids that actually changed. The rank CASE mirrors statusRank.
func (s *PostgresStore) AdvanceStatus(ctx context.Context, roomID string, messageIDs []string, ackUserID string, to MessageStatus) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("realtime: nil store")
	}
	if roomID == "" || ackUserID == "" || statusRank(to) == 0 {
		return nil, ErrBadInput
	}
	if len(messageIDs) == 0 {
		return nil, nil
	}

	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`UPDATE `+messages+`
		    SET status = $1
		  WHERE room_id = $2
		    AND id = ANY($3)
		    AND user_id <> $4
		    AND deleted_at IS NULL
		    AND (CASE status WHEN 'SENT' THEN 1 WHEN 'DELIVERED' THEN 2 WHEN 'READ' THEN 3 ELSE 0 END) < $5
		RETURNING id`,
		string(to), roomID, messageIDs, ackUserID, statusRank(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		applied = append(applied, id)
	}
	return applied, rows.Err()
}

// ListMessages returns messages ordered by id ASC with paging via after_id.
func (s *PostgresStore) ListMessages(ctx context.Context, in ListMessagesInput) (ListMessagesResult, error) {
	if s == nil || s.pool == nil {
		return ListMessagesResult{}, errors.New("realtime: nil store")
	}
	if in.RoomID == "" {
		return ListMessagesResult{}, ErrBadInput
	}

	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	fetch := limit + 1

	messages := pgIdent(s.schema, "messages")

	var (
		rows pgx.Rows
		err  error
	)
	if in.AfterID == nil {
		rows, err = s.pool.Query(ctx,
			`SELECT id, room_id, tenant_id, user_id, content, attachments, status, created_at, deleted_at
			   FROM `+messages+`
			  WHERE room_id = $1
			  ORDER BY id ASC
			  LIMIT $2`,
			in.RoomID, fetch,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, room_id, tenant_id, user_id, content, attachments, status, created_at, deleted_at
			   FROM `+messages+`
			  WHERE room_id = $1 AND id > $2
			  ORDER BY id ASC
			  LIMIT $3`,
			in.RoomID, *in.AfterID, fetch,
		)
	}
	if err != nil {
		return ListMessagesResult{}, err
	}
	defer rows.Close()

	msgs := make([]Message, 0, fetch)
	for rows.Next() {
		var m Message
		var status string
		if err := rows.Scan(&m.ID, &m.RoomID, &m.TenantID, &m.UserID, &m.Content, &m.Attachments, &status, &m.CreatedAt, &m.DeletedAt); err != nil {
			return ListMessagesResult{}, err
		}
		m.Status = MessageStatus(status)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return ListMessagesResult{}, err
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	return ListMessagesResult{Messages: msgs, HasMore: hasMore}, nil
}

func (s *PostgresStore) readByClientMsgID(ctx context.Context, roomID, clientMsgID string) (Message, error) {
	messages := pgIdent(s.schema, "messages")

	var m Message
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, room_id, tenant_id, user_id, content, attachments, status, created_at, deleted_at
		   FROM `+messages+`
		  WHERE room_id = $1 AND client_msg_id = $2`,
		roomID, clientMsgID,
	).Scan(&m.ID, &m.RoomID, &m.TenantID, &m.UserID, &m.Content, &m.Attachments, &status, &m.CreatedAt, &m.DeletedAt)
	if err != nil {
		return Message{}, err
	}
	m.Status = MessageStatus(status)
	return m, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
