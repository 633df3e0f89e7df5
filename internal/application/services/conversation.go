package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/adapters/metrics"
	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

const (
	maxCreateAttempts = 5
	maxWriteAttempts  = 3
	billingTimeout    = 10 * time.Second
)

// ConversationService owns the conversation lifecycle. Every write is
// conditional on the status and version it was read with.
type ConversationService struct {
	convRepo    ports.ConversationRepository
	messages    *MessageService
	idGenerator ports.IDGenerator
	billing     ports.BillingNotifier
	notifier    ports.ConversationNotifier
}

func NewConversationService(
	convRepo ports.ConversationRepository,
	messages *MessageService,
	idGenerator ports.IDGenerator,
	billing ports.BillingNotifier,
	notifier ports.ConversationNotifier,
) *ConversationService {
	return &ConversationService{
		convRepo:    convRepo,
		messages:    messages,
		idGenerator: idGenerator,
		billing:     billing,
		notifier:    notifier,
	}
}

func (s *ConversationService) Get(ctx context.Context, id string) (*models.Conversation, error) {
	if err := ValidateID(id, "conversation"); err != nil {
		return nil, err
	}
	return s.convRepo.GetByID(ctx, id)
}

func (s *ConversationService) GetByRoom(ctx context.Context, roomID string) (*models.Conversation, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	return s.convRepo.GetByRoomID(ctx, roomID)
}

// GetForViewer loads a conversation the identity is allowed to see.
func (s *ConversationService) GetForViewer(ctx context.Context, identity *models.ConnectionIdentity, id string) (*models.Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !identity.Can(models.ActionViewConversation, conv) {
		return nil, domain.NewDomainErrorWithCode(domain.ErrAuthorizationDenied, "conversation belongs to another user", domain.CodeAuthorizationDenied)
	}
	return conv, nil
}

func (s *ConversationService) ListForOwner(ctx context.Context, ownerUserID string) ([]*models.Conversation, error) {
	if err := ValidateID(ownerUserID, "user"); err != nil {
		return nil, err
	}
	return s.convRepo.ListActiveByOwner(ctx, ownerUserID)
}

// JoinRoom lists the identity's conversations, creating the first one for a
// client that has none.
func (s *ConversationService) JoinRoom(ctx context.Context, identity *models.ConnectionIdentity) ([]*models.Conversation, error) {
	convs, err := s.ListForOwner(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	if len(convs) > 0 || identity.Role != models.RoleClient {
		return convs, nil
	}

	conv, err := s.Create(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	return []*models.Conversation{conv}, nil
}

// Create opens a new conversation with the owner's next sequence number,
// allocating again if a concurrent create took the same number.
func (s *ConversationService) Create(ctx context.Context, ownerUserID string) (*models.Conversation, error) {
	if err := ValidateID(ownerUserID, "user"); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		seq, err := s.convRepo.NextSequenceNumber(ctx, ownerUserID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
		}

		conv := models.NewConversation(
			s.idGenerator.GenerateConversationID(),
			s.idGenerator.GenerateRoomID(ownerUserID),
			ownerUserID,
			seq,
		)
		err = s.convRepo.Create(ctx, conv)
		if errors.Is(err, domain.ErrSequenceConflict) {
			log.Debug().Str("owner_user_id", ownerUserID).Int("sequence", seq).Msg("sequence number taken, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
		}

		log.Info().
			Str("conversation_id", conv.ID).
			Str("room_id", conv.RoomID).
			Str("owner_user_id", ownerUserID).
			Int("sequence", seq).
			Msg("conversation created")
		return conv, nil
	}

	return nil, domain.NewDomainError(domain.ErrSequenceConflict, "could not allocate a sequence number")
}

// Switch loads the visible transcript of a conversation the identity owns and
// clears its unread counter.
func (s *ConversationService) Switch(ctx context.Context, identity *models.ConnectionIdentity, id string) (*models.Conversation, []*models.Message, error) {
	conv, err := s.GetForViewer(ctx, identity, id)
	if err != nil {
		return nil, nil, err
	}

	if conv.UnreadCount > 0 {
		if err := s.convRepo.ResetUnread(ctx, conv.ID); err != nil {
			log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to reset unread count")
		} else {
			conv.UnreadCount = 0
		}
	}

	msgs, err := s.messages.VisibleHistory(ctx, conv.ID)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

// Transition moves a conversation to status to. mutate, when given, runs after
// the status change and before the conditional write.
func (s *ConversationService) Transition(
	ctx context.Context,
	id string,
	to models.ConversationStatus,
	reason string,
	mutate func(*models.Conversation),
) (*models.Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := conv.Status
	if from == to {
		return conv, nil
	}

	for attempt := 0; ; attempt++ {
		if err := conv.ChangeStatus(to); err != nil {
			return nil, invalidTransition(err)
		}
		if mutate != nil {
			mutate(conv)
		}
		err := s.update(ctx, conv, from)
		if err == nil {
			break
		}
		if conv, err = s.retryable(ctx, id, from, err, attempt); err != nil {
			return nil, err
		}
	}

	log.Info().
		Str("conversation_id", conv.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("reason", reason).
		Msg("conversation status changed")
	s.publish(conv)
	return conv, nil
}

// Activate performs open → active for the first assistant-authored message.
// Losing the race to another writer is not an error.
func (s *ConversationService) Activate(ctx context.Context, conv *models.Conversation) *models.Conversation {
	if conv.Status != models.ConversationStatusOpen {
		return conv
	}
	updated, err := s.Transition(ctx, conv.ID, models.ConversationStatusActive, "first_ai_message", nil)
	if err != nil {
		return s.reloadAfter(ctx, conv, err)
	}
	return updated
}

// Patch applies a change that keeps the status as it is, rereading and
// reapplying when another write lands first.
func (s *ConversationService) Patch(ctx context.Context, id string, mutate func(*models.Conversation) error) (*models.Conversation, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		conv, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(conv); err != nil {
			return nil, err
		}
		conv.UpdatedAt = time.Now().UTC()

		err = s.convRepo.Update(ctx, conv, conv.Status)
		if errors.Is(err, domain.ErrStaleConversation) {
			metrics.StaleWritesTotal.Inc()
			continue
		}
		if err != nil {
			return nil, persistenceError(err)
		}
		return conv, nil
	}
	return nil, domain.ErrStaleConversation
}

// Claim assigns an active case to the identity. Claiming a case the identity
// already holds returns it unchanged.
func (s *ConversationService) Claim(ctx context.Context, identity *models.ConnectionIdentity, id string) (*models.Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		if !identity.Can(models.ActionClaimCase, conv) {
			switch {
			case conv.AssignedLawyerID == identity.UserID && conv.Status == models.ConversationStatusAssignedToLawyer:
				return conv, nil
			case conv.AssignedLawyerID != "":
				return nil, domain.ErrCaseAlreadyClaimed
			}
			return nil, domain.NewDomainErrorWithCode(domain.ErrAuthorizationDenied, "case cannot be claimed", domain.CodeAuthorizationDenied)
		}

		from := conv.Status
		if err := conv.AssignLawyer(identity.UserID); err != nil {
			return nil, invalidTransition(err)
		}

		err := s.update(ctx, conv, from)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrStaleConversation) {
			return nil, err
		}

		current, gerr := s.Get(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		switch {
		case current.Status == from && attempt+1 < maxWriteAttempts:
			// only fields changed underneath; claim the fresh copy
			conv = current
		case current.AssignedLawyerID == identity.UserID:
			return current, nil
		case current.Status == from:
			return nil, err
		default:
			return nil, domain.ErrCaseAlreadyClaimed
		}
	}

	log.Info().Str("conversation_id", conv.ID).Str("lawyer_id", identity.UserID).Msg("case claimed")
	s.notifyBilling(ctx, ports.CaseEvent{
		Type:           ports.CaseEventClaimed,
		ConversationID: conv.ID,
		OwnerUserID:    conv.OwnerUserID,
		LawyerID:       identity.UserID,
		OccurredAt:     *conv.ClaimedAt,
	})
	s.publish(conv)
	return conv, nil
}

// Close completes an assigned case with a resolution note.
func (s *ConversationService) Close(ctx context.Context, identity *models.ConnectionIdentity, id, note string) (*models.Conversation, error) {
	if err := ValidateRequired(note, "resolution note"); err != nil {
		return nil, err
	}
	if err := ValidateStringLength(note, "resolution note", 0, MaxResolutionNoteLength); err != nil {
		return nil, err
	}

	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		if !identity.Can(models.ActionCloseCase, conv) {
			return nil, domain.NewDomainErrorWithCode(domain.ErrAuthorizationDenied, "case is not assigned to you", domain.CodeAuthorizationDenied)
		}

		from := conv.Status
		if err := conv.Close(note); err != nil {
			return nil, invalidTransition(err)
		}
		err := s.update(ctx, conv, from)
		if err == nil {
			break
		}
		if conv, err = s.retryable(ctx, id, from, err, attempt); err != nil {
			return nil, err
		}
	}

	log.Info().Str("conversation_id", conv.ID).Str("lawyer_id", identity.UserID).Msg("case closed")
	s.notifyBilling(ctx, ports.CaseEvent{
		Type:           ports.CaseEventCompleted,
		ConversationID: conv.ID,
		OwnerUserID:    conv.OwnerUserID,
		LawyerID:       conv.AssignedLawyerID,
		OccurredAt:     conv.UpdatedAt,
	})
	s.publish(conv)
	return conv, nil
}

// Reopen takes a terminal conversation back for staff review. A case a
// lawyer held goes back to that lawyer, anything else to active.
func (s *ConversationService) Reopen(ctx context.Context, identity *models.ConnectionIdentity, id string) (*models.Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var from models.ConversationStatus
	for attempt := 0; ; attempt++ {
		if !identity.Can(models.ActionReopenCase, conv) {
			return nil, domain.NewDomainErrorWithCode(domain.ErrAuthorizationDenied, "reopening requires the cases:reopen permission", domain.CodeAuthorizationDenied)
		}

		from = conv.Status
		if err := conv.Reopen(); err != nil {
			return nil, invalidTransition(err)
		}
		err := s.update(ctx, conv, from)
		if err == nil {
			break
		}
		if conv, err = s.retryable(ctx, id, from, err, attempt); err != nil {
			return nil, err
		}
	}

	log.Info().
		Str("conversation_id", conv.ID).
		Str("actor_id", identity.UserID).
		Str("from", string(from)).
		Str("to", string(conv.Status)).
		Msg("conversation reopened")
	s.publish(conv)
	return conv, nil
}

// Abandon ends a conversation at its owner's request.
func (s *ConversationService) Abandon(ctx context.Context, identity *models.ConnectionIdentity, id string) (*models.Conversation, error) {
	conv, err := s.GetForViewer(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	if conv.Status == models.ConversationStatusAbandoned {
		return conv, nil
	}
	if !models.CanAbandon(conv.Status) {
		return nil, invalidTransition(models.NewInvalidTransitionError(conv.Status, models.ConversationStatusAbandoned))
	}

	updated, err := s.Transition(ctx, conv.ID, models.ConversationStatusAbandoned, "user_exit", nil)
	if err != nil {
		if errors.Is(err, domain.ErrStaleConversation) {
			return s.reloadAfter(ctx, conv, err), nil
		}
		return nil, err
	}
	return updated, nil
}

// ListCases returns the staff queue, narrowed to the cases the identity may see.
func (s *ConversationService) ListCases(ctx context.Context, identity *models.ConnectionIdentity, filter ports.CaseFilter) ([]*models.Conversation, error) {
	if !identity.Can(models.ActionViewCaseQueue, nil) {
		return nil, domain.NewDomainErrorWithCode(domain.ErrAuthorizationDenied, "case queue is staff only", domain.CodeAuthorizationDenied)
	}

	convs, err := s.convRepo.ListCases(ctx, filter)
	if err != nil {
		return nil, persistenceError(err)
	}

	visible := make([]*models.Conversation, 0, len(convs))
	for _, c := range convs {
		if identity.Can(models.ActionViewConversation, c) {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

func (s *ConversationService) update(ctx context.Context, conv *models.Conversation, expected models.ConversationStatus) error {
	err := s.convRepo.Update(ctx, conv, expected)
	switch {
	case err == nil:
		metrics.StatusTransitionsTotal.WithLabelValues(string(expected), string(conv.Status)).Inc()
		return nil
	case errors.Is(err, domain.ErrStaleConversation):
		metrics.StaleWritesTotal.Inc()
		return err
	case errors.Is(err, domain.ErrConversationNotFound):
		return err
	default:
		return persistenceError(err)
	}
}

// retryable rereads a conversation after a lost conditional write. A write
// that kept the status is retried over; a status change ends the attempt.
func (s *ConversationService) retryable(ctx context.Context, id string, from models.ConversationStatus, cause error, attempt int) (*models.Conversation, error) {
	if !errors.Is(cause, domain.ErrStaleConversation) || attempt+1 >= maxWriteAttempts {
		return nil, cause
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != from {
		return nil, cause
	}
	return current, nil
}

// reloadAfter returns the stored conversation after a lost race, falling back
// to the caller's copy when it cannot be read.
func (s *ConversationService) reloadAfter(ctx context.Context, conv *models.Conversation, cause error) *models.Conversation {
	if errors.Is(cause, domain.ErrStaleConversation) {
		log.Debug().Str("conversation_id", conv.ID).Msg("status changed concurrently, dropping transition")
	} else {
		log.Warn().Err(cause).Str("conversation_id", conv.ID).Msg("status transition failed")
	}
	current, err := s.Get(ctx, conv.ID)
	if err != nil {
		return conv
	}
	return current
}

func (s *ConversationService) publish(conv *models.Conversation) {
	if s.notifier != nil {
		s.notifier.NotifyConversationUpdated(conv.Clone())
	}
}

func (s *ConversationService) notifyBilling(ctx context.Context, event ports.CaseEvent) {
	if s.billing == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), billingTimeout)
		defer cancel()
		if err := s.billing.NotifyCaseEvent(ctx, event); err != nil {
			log.Warn().Err(err).
				Str("event", event.Type).
				Str("conversation_id", event.ConversationID).
				Msg("billing notification failed")
		}
	}()
}

func invalidTransition(err error) error {
	return domain.NewDomainError(domain.ErrInvalidStatusTransition, err.Error())
}

func persistenceError(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
}
