package core

// Context keys used to carry the authenticated identity through a request.
type contextKey string

const (
	ContextKeyUserID   contextKey = "userID"
	ContextKeyApiKeyID contextKey = "apiKeyID"
)
