package dto

// AnonymousTokenResponse carries a freshly minted anonymous identity
type AnonymousTokenResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	ExpiresAt int64  `json:"expiresAt"`
}
