package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
)

const messageColumns = `id, conversation_id, sender, sender_id, text, payload_kind, payload, created_at`

type MessageRepository struct {
	BaseRepository
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{
		BaseRepository: NewBaseRepository(pool),
	}
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	kind, payload, err := models.EncodePayload(message.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO counsel_messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.conn(ctx).Exec(ctx, query,
		message.ID,
		message.ConversationID,
		message.Sender,
		nullString(message.SenderID),
		message.Text,
		kind,
		payload,
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + messageColumns + ` FROM counsel_messages WHERE id = $1`

	msg, err := scanMessageRow(r.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if checkNoRows(err) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]*models.Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + messageColumns + `
		FROM counsel_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.conn(ctx).Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		msg, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func scanMessageRow(row pgx.Row) (*models.Message, error) {
	var m models.Message
	var senderID sql.NullString
	var kind models.PayloadKind
	var payload []byte

	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.Sender,
		&senderID,
		&m.Text,
		&kind,
		&payload,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.SenderID = getString(senderID)
	m.Payload, err = models.DecodePayload(kind, payload)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", m.ID, err)
	}

	return &m, nil
}
