package tools

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

const RegisterUserName = "register_user"

type registerUserArgs struct {
	Name               string `json:"name" jsonschema_description:"Full name of the client"`
	Email              string `json:"email,omitempty" jsonschema_description:"Email address, if the client gave one"`
	Phone              string `json:"phone,omitempty" jsonschema_description:"Phone number with area code, if the client gave one"`
	ProblemDescription string `json:"problem_description" jsonschema_description:"Short description of the legal problem in the client's words"`
	UrgencyLevel       string `json:"urgency_level" jsonschema:"enum=low,enum=medium,enum=high,enum=urgent" jsonschema_description:"How urgent the problem is"`
}

// RegisterUser records the client's contact details on the conversation and
// resolves them to a user.
type RegisterUser struct {
	conversations ConversationStore
	identity      IdentityResolver
	definition    ports.LLMTool
}

func NewRegisterUser(conversations ConversationStore, identity IdentityResolver) *RegisterUser {
	return &RegisterUser{
		conversations: conversations,
		identity:      identity,
		definition: ports.LLMTool{
			Name:        RegisterUserName,
			Description: "Register the client once their name and a contact (email or phone) are known. Call it as soon as the client shares contact details.",
			Parameters:  schemaFor(&registerUserArgs{}),
		},
	}
}

func (h *RegisterUser) Definition() ports.LLMTool {
	return h.definition
}

func (h *RegisterUser) Execute(ctx context.Context, call Call) (Effect, error) {
	name := stringArg(call.Args, "name")
	problem := stringArg(call.Args, "problem_description")
	priority := models.ParsePriority(strings.ToLower(stringArg(call.Args, "urgency_level")))
	contact := models.NormalizeContact(stringArg(call.Args, "email"), stringArg(call.Args, "phone"))

	var res *models.Resolution
	if !contact.IsEmpty() {
		var err error
		res, err = h.identity.Resolve(ctx, name, contact)
		if err != nil {
			log.Warn().Err(err).Str("conversation_id", call.Conversation.ID).Msg("contact resolution failed, using placeholder")
			res = nil
		}
	}
	if res == nil {
		var err error
		res, err = h.identity.CreatePlaceholder(ctx, name, call.Conversation.ID)
		if err != nil {
			return Effect{}, err
		}
	}
	placeholder := res.Contact.IsPlaceholder()

	conv, err := h.conversations.Patch(ctx, call.Conversation.ID, func(c *models.Conversation) error {
		if name != "" {
			c.ContactName = name
		}
		if problem != "" {
			c.ProblemDescription = problem
		}
		c.ContactEmail = res.Contact.Email
		c.ContactPhone = res.Contact.Phone
		c.Priority = priority
		if res.Linked() || placeholder {
			c.LinkedUserID = res.User.ID
		}
		return nil
	})
	if err != nil {
		return Effect{}, err
	}

	return Effect{
		Conversation: conv,
		Result: map[string]any{
			"outcome":               string(res.Outcome),
			"verification_required": !res.Linked() && !placeholder,
			"code_sent":             res.CodeSent,
			"priority":              string(priority),
		},
	}, nil
}
