package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/adapters/http/dto"
	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/ports"
)

const (
	defaultCaseLimit = 50
	maxCaseLimit     = 200
)

// CasesHandler serves the staff side of the intake: the case queue and
// claim, close and reopen.
type CasesHandler struct {
	conversations ConversationManager
}

func NewCasesHandler(conversations ConversationManager) *CasesHandler {
	return &CasesHandler{conversations: conversations}
}

// List returns the case queue. ?lawyerNeeded=true narrows it to escalated
// cases, ?assigned=me to the caller's own.
func (h *CasesHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	filter := ports.CaseFilter{
		Limit:  parseIntQuery(r, "limit", defaultCaseLimit),
		Offset: parseIntQuery(r, "offset", 0),
	}
	if filter.Limit == 0 || filter.Limit > maxCaseLimit {
		filter.Limit = maxCaseLimit
	}
	if raw := r.URL.Query().Get("lawyerNeeded"); raw != "" {
		needed, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, domain.CodeValidation, "lawyerNeeded must be true or false", http.StatusBadRequest)
			return
		}
		filter.LawyerNeeded = &needed
	}
	if r.URL.Query().Get("assigned") == "me" {
		filter.AssignedLawyerID = identity.UserID
	}

	convs, err := h.conversations.ListCases(r.Context(), identity, filter)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, dto.ConversationListResponse{
		Conversations: dto.ConversationsFromModels(convs),
		Total:         len(convs),
	}, http.StatusOK)
}

func (h *CasesHandler) Claim(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := validateURLParam(r, w, "id", "case id")
	if !ok {
		return
	}

	conv, err := h.conversations.Claim(r.Context(), identity, id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	log.Info().Str("conversation_id", conv.ID).Str("lawyer_id", identity.UserID).Msg("case claimed")
	respondJSON(w, dto.ConversationFromModel(conv), http.StatusOK)
}

func (h *CasesHandler) Close(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := validateURLParam(r, w, "id", "case id")
	if !ok {
		return
	}

	var note string
	if r.ContentLength != 0 {
		req, ok := decodeJSON[dto.CloseCaseRequest](r, w)
		if !ok {
			return
		}
		note = req.ResolutionNote
	}

	conv, err := h.conversations.Close(r.Context(), identity, id, note)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	log.Info().Str("conversation_id", conv.ID).Str("lawyer_id", identity.UserID).Msg("case closed")
	respondJSON(w, dto.ConversationFromModel(conv), http.StatusOK)
}

func (h *CasesHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := validateURLParam(r, w, "id", "case id")
	if !ok {
		return
	}

	conv, err := h.conversations.Reopen(r.Context(), identity, id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, dto.ConversationFromModel(conv), http.StatusOK)
}
