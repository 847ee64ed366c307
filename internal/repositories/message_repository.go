package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"receipt-overseer/internal/models"
)

const defaultHistoryLimit = 50

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, authorID int, content string) (models.ChatMessage, error)
	GetMessage(ctx context.Context, messageID int) (models.ChatMessage, error)
	ListRecentMessages(ctx context.Context, limit int) ([]models.ChatMessage, error)
	UpdateMessage(ctx context.Context, messageID, authorID int, content string) (models.ChatMessage, error)
	DeleteMessage(ctx context.Context, messageID, authorID int) error
}

type messageRow struct {
	ID        int    `db:"id"`
	AuthorID  int    `db:"user_id"`
	Author    string `db:"username"`
	Content   string `db:"content"`
	Edited    bool   `db:"edited"`
	CreatedAt int64  `db:"created_at"`
}

func (r messageRow) model() models.ChatMessage {
	return models.ChatMessage{
		ID:        r.ID,
		AuthorID:  r.AuthorID,
		Author:    r.Author,
		Content:   r.Content,
		Edited:    r.Edited,
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
	}
}

const messageSelect = `SELECT m.id, m.user_id, u.username, m.content, m.edited, m.created_at
        FROM messages m JOIN users u ON u.id = m.user_id`

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a chat message.
func (r *MessageRepo) CreateMessage(ctx context.Context, authorID int, content string) (models.ChatMessage, error) {
	var id int
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO messages (user_id, content, created_at) VALUES (?, ?, ?) RETURNING id`),
		authorID, content, time.Now().UnixMilli()).Scan(&id)
	if err != nil {
		return models.ChatMessage{}, err
	}
	return r.GetMessage(ctx, id)
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.ChatMessage, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(messageSelect+` WHERE m.id=?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatMessage{}, ErrMessageNotFound
	}
	if err != nil {
		return models.ChatMessage{}, err
	}
	return row.model(), nil
}

// ListRecentMessages returns the latest limit messages, oldest first.
func (r *MessageRepo) ListRecentMessages(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	query := `SELECT * FROM (` + messageSelect + ` ORDER BY m.id DESC LIMIT ?) recent ORDER BY id ASC`
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), limit); err != nil {
		return nil, err
	}
	msgs := make([]models.ChatMessage, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.model())
	}
	return msgs, nil
}

// UpdateMessage replaces the content of a message owned by authorID and marks it edited.
func (r *MessageRepo) UpdateMessage(ctx context.Context, messageID, authorID int, content string) (models.ChatMessage, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE messages SET content=?, edited=TRUE WHERE id=? AND user_id=?`), content, messageID, authorID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.ChatMessage{}, err
	}
	if count == 0 {
		return models.ChatMessage{}, r.missOrForeign(ctx, messageID)
	}
	return r.GetMessage(ctx, messageID)
}

// DeleteMessage removes a message owned by authorID.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID, authorID int) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM messages WHERE id=? AND user_id=?`), messageID, authorID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return r.missOrForeign(ctx, messageID)
	}
	return nil
}

func (r *MessageRepo) missOrForeign(ctx context.Context, messageID int) error {
	if _, err := r.GetMessage(ctx, messageID); err != nil {
		return err
	}
	return ErrNotOwner
}
