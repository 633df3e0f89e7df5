package postgres

import (
	"context"
	"database/sql"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/longregen/counsel/internal/domain/models"
)

// setupMockContext creates a context with the mock as a transaction
// This allows the BaseRepository.conn() method to return the mock
func setupMockContext(mock pgxmock.PgxPoolIface) context.Context {
	return context.WithValue(context.Background(), txContextKey{}, mock)
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

var conversationColumnNames = []string{
	"id", "room_id", "owner_user_id", "status", "sequence_number", "title", "is_active", "unread_count",
	"priority", "classification", "lawyer_needed", "assigned_lawyer_id", "specialization",
	"case_summary", "required_specialties", "resolution_note", "linked_user_id", "contact_name",
	"contact_email", "contact_phone", "problem_description", "feedback_requested",
	"created_at", "updated_at", "last_message_at", "claimed_at", "closed_at", "version",
}

func conversationRow(c *models.Conversation, classification []byte) []any {
	return []any{
		c.ID, c.RoomID, c.OwnerUserID, c.Status, c.SequenceNumber, c.Title, c.IsActive, c.UnreadCount,
		c.Priority, classification, c.LawyerNeeded, nullString(c.AssignedLawyerID), nullString(c.Specialization),
		nullString(c.CaseSummary), specialties(c.RequiredSpecialties), nullString(c.ResolutionNote),
		nullString(c.LinkedUserID), nullString(c.ContactName), nullString(c.ContactEmail),
		nullString(c.ContactPhone), nullString(c.ProblemDescription), c.FeedbackRequested,
		c.CreatedAt, c.UpdatedAt, nullTime(c.LastMessageAt), nullTime(c.ClaimedAt), sql.NullTime{},
		c.Version,
	}
}
