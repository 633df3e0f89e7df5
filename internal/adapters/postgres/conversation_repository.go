package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

const conversationColumns = `
		id, room_id, owner_user_id, status, sequence_number, title, is_active, unread_count,
		priority, classification, lawyer_needed, assigned_lawyer_id, specialization,
		case_summary, required_specialties, resolution_note, linked_user_id, contact_name,
		contact_email, contact_phone, problem_description, feedback_requested,
		created_at, updated_at, last_message_at, claimed_at, closed_at, version`

type ConversationRepository struct {
	BaseRepository
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{
		BaseRepository: NewBaseRepository(pool),
	}
}

func (r *ConversationRepository) Create(ctx context.Context, c *models.Conversation) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	classification, err := marshalJSONField(c.Classification)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO counsel_conversations (` + conversationColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28
		)`

	_, err = r.conn(ctx).Exec(ctx, query,
		c.ID,
		c.RoomID,
		c.OwnerUserID,
		c.Status,
		c.SequenceNumber,
		c.Title,
		c.IsActive,
		c.UnreadCount,
		c.Priority,
		classification,
		c.LawyerNeeded,
		nullString(c.AssignedLawyerID),
		nullString(c.Specialization),
		nullString(c.CaseSummary),
		specialties(c.RequiredSpecialties),
		nullString(c.ResolutionNote),
		nullString(c.LinkedUserID),
		nullString(c.ContactName),
		nullString(c.ContactEmail),
		nullString(c.ContactPhone),
		nullString(c.ProblemDescription),
		c.FeedbackRequested,
		c.CreatedAt,
		c.UpdatedAt,
		nullTime(c.LastMessageAt),
		nullTime(c.ClaimedAt),
		nullTime(c.ClosedAt),
		c.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSequenceConflict
		}
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + conversationColumns + `
		FROM counsel_conversations
		WHERE id = $1`

	return r.scanConversation(r.conn(ctx).QueryRow(ctx, query, id))
}

func (r *ConversationRepository) GetByRoomID(ctx context.Context, roomID string) (*models.Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + conversationColumns + `
		FROM counsel_conversations
		WHERE room_id = $1`

	return r.scanConversation(r.conn(ctx).QueryRow(ctx, query, roomID))
}

func (r *ConversationRepository) NextSequenceNumber(ctx context.Context, ownerUserID string) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT COALESCE(MAX(sequence_number), 0) + 1
		FROM counsel_conversations
		WHERE owner_user_id = $1`

	var next int
	if err := r.conn(ctx).QueryRow(ctx, query, ownerUserID).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to allocate sequence number: %w", err)
	}
	return next, nil
}

func (r *ConversationRepository) ListActiveByOwner(ctx context.Context, ownerUserID string) ([]*models.Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + conversationColumns + `
		FROM counsel_conversations
		WHERE (owner_user_id = $1 OR linked_user_id = $1) AND is_active = TRUE
		ORDER BY created_at DESC`

	rows, err := r.conn(ctx).Query(ctx, query, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanConversations(rows)
}

func (r *ConversationRepository) ListCases(ctx context.Context, filter ports.CaseFilter) ([]*models.Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	where := []string{"is_active = TRUE"}
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.LawyerNeeded != nil {
		where = append(where, "lawyer_needed = "+next(*filter.LawyerNeeded))
	}
	if filter.AssignedLawyerID != "" {
		where = append(where, "assigned_lawyer_id = "+next(filter.AssignedLawyerID))
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status = ANY("+next(statusStrings(filter.Statuses))+")")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + conversationColumns + `
		FROM counsel_conversations
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at ASC
		LIMIT ` + next(limit) + ` OFFSET ` + next(max(filter.Offset, 0))

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanConversations(rows)
}

func (r *ConversationRepository) ListIdleSince(ctx context.Context, statuses []models.ConversationStatus, before time.Time, limit int) ([]*models.Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + conversationColumns + `
		FROM counsel_conversations
		WHERE status = ANY($1) AND COALESCE(last_message_at, created_at) < $2
		ORDER BY COALESCE(last_message_at, created_at) ASC
		LIMIT $3`

	rows, err := r.conn(ctx).Query(ctx, query, statusStrings(statuses), before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanConversations(rows)
}

func (r *ConversationRepository) Update(ctx context.Context, c *models.Conversation, expected models.ConversationStatus) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	classification, err := marshalJSONField(c.Classification)
	if err != nil {
		return err
	}

	query := `
		UPDATE counsel_conversations
		SET status = $2,
			title = $3,
			is_active = $4,
			priority = $5,
			classification = $6,
			lawyer_needed = $7,
			assigned_lawyer_id = $8,
			specialization = $9,
			case_summary = $10,
			required_specialties = $11,
			resolution_note = $12,
			linked_user_id = $13,
			contact_name = $14,
			contact_email = $15,
			contact_phone = $16,
			problem_description = $17,
			feedback_requested = $18,
			updated_at = $19,
			claimed_at = $20,
			closed_at = $21,
			version = version + 1
		WHERE id = $1 AND status = $22 AND version = $23`

	tag, err := r.conn(ctx).Exec(ctx, query,
		c.ID,
		c.Status,
		c.Title,
		c.IsActive,
		c.Priority,
		classification,
		c.LawyerNeeded,
		nullString(c.AssignedLawyerID),
		nullString(c.Specialization),
		nullString(c.CaseSummary),
		specialties(c.RequiredSpecialties),
		nullString(c.ResolutionNote),
		nullString(c.LinkedUserID),
		nullString(c.ContactName),
		nullString(c.ContactEmail),
		nullString(c.ContactPhone),
		nullString(c.ProblemDescription),
		c.FeedbackRequested,
		c.UpdatedAt,
		nullTime(c.ClaimedAt),
		nullTime(c.ClosedAt),
		expected,
		c.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if tag.RowsAffected() > 0 {
		c.Version++
		return nil
	}

	// Nothing matched: either the row is gone or another write landed first.
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM counsel_conversations WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}
	if !exists {
		return domain.ErrConversationNotFound
	}
	return domain.ErrStaleConversation
}

func (r *ConversationRepository) RecordActivity(ctx context.Context, id string, at time.Time, unread bool) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE counsel_conversations
		SET last_message_at = $2,
			updated_at = $2,
			unread_count = unread_count + CASE WHEN $3 THEN 1 ELSE 0 END
		WHERE id = $1`

	_, err := r.conn(ctx).Exec(ctx, query, id, at, unread)
	return err
}

func (r *ConversationRepository) ResetUnread(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.conn(ctx).Exec(ctx, `UPDATE counsel_conversations SET unread_count = 0 WHERE id = $1`, id)
	return err
}

func (r *ConversationRepository) scanConversation(row pgx.Row) (*models.Conversation, error) {
	c, err := scanConversationRow(row)
	if err != nil {
		if checkNoRows(err) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *ConversationRepository) scanConversations(rows pgx.Rows) ([]*models.Conversation, error) {
	conversations := make([]*models.Conversation, 0)

	for rows.Next() {
		c, err := scanConversationRow(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}

	return conversations, rows.Err()
}

func scanConversationRow(row pgx.Row) (*models.Conversation, error) {
	var c models.Conversation
	var classification []byte
	var assignedLawyer, specialization, caseSummary, resolutionNote sql.NullString
	var linkedUser, contactName, contactEmail, contactPhone, problem sql.NullString
	var lastMessageAt, claimedAt, closedAt sql.NullTime

	err := row.Scan(
		&c.ID,
		&c.RoomID,
		&c.OwnerUserID,
		&c.Status,
		&c.SequenceNumber,
		&c.Title,
		&c.IsActive,
		&c.UnreadCount,
		&c.Priority,
		&classification,
		&c.LawyerNeeded,
		&assignedLawyer,
		&specialization,
		&caseSummary,
		&c.RequiredSpecialties,
		&resolutionNote,
		&linkedUser,
		&contactName,
		&contactEmail,
		&contactPhone,
		&problem,
		&c.FeedbackRequested,
		&c.CreatedAt,
		&c.UpdatedAt,
		&lastMessageAt,
		&claimedAt,
		&closedAt,
		&c.Version,
	)
	if err != nil {
		return nil, err
	}

	c.AssignedLawyerID = getString(assignedLawyer)
	c.Specialization = getString(specialization)
	c.CaseSummary = getString(caseSummary)
	c.ResolutionNote = getString(resolutionNote)
	c.LinkedUserID = getString(linkedUser)
	c.ContactName = getString(contactName)
	c.ContactEmail = getString(contactEmail)
	c.ContactPhone = getString(contactPhone)
	c.ProblemDescription = getString(problem)
	c.LastMessageAt = getTimePtr(lastMessageAt)
	c.ClaimedAt = getTimePtr(claimedAt)
	c.ClosedAt = getTimePtr(closedAt)

	c.Classification, err = unmarshalJSONPointer[models.Classification](classification)
	if err != nil {
		return nil, err
	}

	return &c, nil
}

func specialties(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func statusStrings(statuses []models.ConversationStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
