// Package agent – context.go carries the per-request identifiers that hooks
// consult to decide whether server-mode behavior applies. The server handler
// sets both before entering the turn loop; CLI contexts leave them unset.
package agent

import "context"

type conversationIDKey struct{}
type sessionIDKey struct{}

// ContextWithConversation attaches a conversation id.
func ContextWithConversation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationIDKey{}, id)
}

// ConversationIDFromContext returns the conversation id, if set.
func ConversationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(conversationIDKey{}).(string)
	return id, ok && id != ""
}

// ContextWithSession attaches a session id.
func ContextWithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionIDFromContext returns the session id, if set.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey{}).(string)
	return id, ok && id != ""
}
