package postgres

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
)

var messageColumnNames = []string{"id", "conversation_id", "sender", "sender_id", "text", "payload_kind", "payload", "created_at"}

func TestMessageRepository_Create(t *testing.T) {
	tests := []struct {
		name     string
		message  *models.Message
		wantKind models.PayloadKind
	}{
		{
			name:     "plain user message",
			message:  models.NewUserMessage("cm_1", "cv_1", "u1", "Olá"),
			wantKind: models.PayloadKindPlainText,
		},
		{
			name: "hidden function call",
			message: models.NewMessage("cm_2", "cv_1", models.SenderAI, "", "",
				models.FunctionCall{CallID: "call_1", Name: "register_user", Args: map[string]any{"name": "Maria"}}),
			wantKind: models.PayloadKindFunctionCall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatal(err)
			}
			defer mock.Close()

			repo := &MessageRepository{BaseRepository: BaseRepository{pool: nil}}

			mock.ExpectExec("INSERT INTO counsel_messages").
				WithArgs(tt.message.ID, "cv_1", tt.message.Sender, pgxmock.AnyArg(), tt.message.Text,
					tt.wantKind, pgxmock.AnyArg(), pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))

			if err := repo.Create(setupMockContext(mock), tt.message); err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestMessageRepository_Create_Failure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &MessageRepository{BaseRepository: BaseRepository{pool: nil}}

	mock.ExpectExec("INSERT INTO counsel_messages").
		WithArgs(anyArgs(8)...).
		WillReturnError(errors.New("connection reset"))

	err = repo.Create(setupMockContext(mock), models.NewUserMessage("cm_1", "cv_1", "u1", "Olá"))
	if err == nil {
		t.Fatal("expected error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMessageRepository_ListByConversation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &MessageRepository{BaseRepository: BaseRepository{pool: nil}}
	now := time.Now().UTC()

	rows := pgxmock.NewRows(messageColumnNames).
		AddRow("cm_1", "cv_1", models.SenderUser, sql.NullString{String: "u1", Valid: true}, "Olá",
			models.PayloadKindPlainText, []byte(nil), now).
		AddRow("cm_2", "cv_1", models.SenderAI, sql.NullString{}, "",
			models.PayloadKindFunctionCall, []byte(`{"name":"register_user","args":{"name":"Maria"}}`), now).
		AddRow("cm_3", "cv_1", models.SenderSystem, sql.NullString{}, "Serviço indisponível",
			models.PayloadKindErrorNotice, []byte(`{"code":"unavailable","retryable":true}`), now)

	mock.ExpectQuery("SELECT (.+) FROM counsel_messages WHERE conversation_id").
		WithArgs("cv_1").
		WillReturnRows(rows)

	messages, err := repo.ListByConversation(setupMockContext(mock), "cv_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}

	if messages[0].SenderID != "u1" || messages[0].HiddenFromClients() {
		t.Errorf("unexpected first message: %+v", messages[0])
	}
	call, ok := messages[1].Payload.(models.FunctionCall)
	if !ok || call.Name != "register_user" || !messages[1].HiddenFromClients() {
		t.Errorf("expected hidden function call, got %+v", messages[1].Payload)
	}
	notice, ok := messages[2].ErrorNotice()
	if !ok || !notice.Retryable {
		t.Errorf("expected retryable error notice, got %+v", messages[2].Payload)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMessageRepository_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &MessageRepository{BaseRepository: BaseRepository{pool: nil}}

	mock.ExpectQuery("SELECT (.+) FROM counsel_messages WHERE id").
		WithArgs("cm_missing").
		WillReturnRows(pgxmock.NewRows(messageColumnNames))

	_, err = repo.GetByID(setupMockContext(mock), "cm_missing")
	if !errors.Is(err, domain.ErrMessageNotFound) {
		t.Errorf("expected ErrMessageNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
