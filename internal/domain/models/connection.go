package models

// ConnectionIdentity is derived from the credential presented at connect time.
// It lives as long as the connection and is never persisted.
type ConnectionIdentity struct {
	UserID          string   `json:"user_id"`
	IsAuthenticated bool     `json:"is_authenticated"`
	IsAnonymous     bool     `json:"is_anonymous"`
	Role            Role     `json:"role"`
	Permissions     []string `json:"permissions,omitempty"`
}

// Capability builds the context for a capability decision about conv.
func (c *ConnectionIdentity) Capability(conv *Conversation) CapabilityContext {
	return CapabilityContext{
		ActorID:      c.UserID,
		Permissions:  c.Permissions,
		Conversation: conv,
	}
}

func (c *ConnectionIdentity) Can(action Action, conv *Conversation) bool {
	return Can(c.Role, action, c.Capability(conv))
}
