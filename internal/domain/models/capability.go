package models

type Role string

const (
	RoleClient    Role = "client"
	RoleLawyer    Role = "lawyer"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"

	// Internal actors, never carried by a token
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
)

// ParseRole maps a token claim onto a Role. Unknown or internal roles become client.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleLawyer, RoleModerator, RoleAdmin:
		return Role(s)
	}
	return RoleClient
}

func (r Role) IsStaff() bool {
	return r == RoleLawyer || r == RoleModerator || r == RoleAdmin
}

const (
	PermissionSuperuser   = "superuser"
	PermissionModerate    = "moderate"
	PermissionReopenCases = "cases:reopen"
)

type Action string

const (
	ActionViewConversation  Action = "conversation:view"
	ActionSendMessage       Action = "message:send"
	ActionAIReply           Action = "message:ai_reply"
	ActionAIClosingReply    Action = "message:ai_closing_reply"
	ActionSendLawyerMessage Action = "message:lawyer"
	ActionModerate          Action = "message:moderate"
	ActionSystemNotice      Action = "message:system"
	ActionViewCaseQueue     Action = "case:queue"
	ActionJoinCase          Action = "case:join"
	ActionClaimCase         Action = "case:claim"
	ActionCloseCase         Action = "case:close"
	ActionReopenCase        Action = "case:reopen"
)

// CapabilityContext carries the facts a capability decision depends on.
type CapabilityContext struct {
	ActorID      string
	Permissions  []string
	Conversation *Conversation
}

func (c CapabilityContext) HasPermission(p string) bool {
	for _, perm := range c.Permissions {
		if perm == p {
			return true
		}
	}
	return false
}

// IsSuperuser reports whether the actor may act on any case regardless of assignment.
func IsSuperuser(role Role, c CapabilityContext) bool {
	return role == RoleAdmin || c.HasPermission(PermissionSuperuser)
}

// Can is the single capability matrix consulted for every role and action.
func Can(role Role, action Action, c CapabilityContext) bool {
	switch action {
	case ActionSystemNotice:
		return role == RoleSystem
	case ActionModerate:
		return (role == RoleModerator || role == RoleAdmin) &&
			(c.HasPermission(PermissionModerate) || IsSuperuser(role, c))
	case ActionViewCaseQueue:
		return role.IsStaff()
	}

	conv := c.Conversation
	if conv == nil {
		return false
	}
	super := IsSuperuser(role, c)
	assignedToActor := conv.AssignedLawyerID != "" && conv.AssignedLawyerID == c.ActorID

	switch action {
	case ActionViewConversation:
		switch {
		case role == RoleClient:
			return conv.BelongsTo(c.ActorID)
		case super:
			return true
		case role == RoleLawyer:
			return assignedToActor || (conv.AssignedLawyerID == "" && conv.LawyerNeeded)
		case role == RoleModerator:
			return c.HasPermission(PermissionModerate)
		}
		return false

	case ActionSendMessage:
		return role == RoleClient && !conv.Status.IsTerminal()

	case ActionAIReply:
		return role == RoleAI &&
			(conv.Status == ConversationStatusOpen || conv.Status == ConversationStatusActive)

	// The closing words of the turn whose own tool resolved the conversation.
	case ActionAIClosingReply:
		return role == RoleAI && conv.Status == ConversationStatusResolvedByAI

	case ActionSendLawyerMessage:
		if role != RoleLawyer && role != RoleAdmin {
			return false
		}
		return (assignedToActor || super) && conv.Status == ConversationStatusAssignedToLawyer

	case ActionClaimCase:
		if role != RoleLawyer && role != RoleAdmin {
			return false
		}
		if conv.Status != ConversationStatusActive || conv.AssignedLawyerID != "" {
			return false
		}
		return conv.LawyerNeeded || super

	case ActionCloseCase:
		if role != RoleLawyer && role != RoleAdmin {
			return false
		}
		return (assignedToActor || super) && conv.Status == ConversationStatusAssignedToLawyer

	case ActionReopenCase:
		return conv.Status.IsTerminal() && (super || c.HasPermission(PermissionReopenCases))

	case ActionJoinCase:
		switch role {
		case RoleAdmin:
			return true
		case RoleLawyer:
			return super || assignedToActor || (conv.AssignedLawyerID == "" && conv.LawyerNeeded)
		case RoleModerator:
			return c.HasPermission(PermissionModerate)
		}
		return false
	}

	return false
}
