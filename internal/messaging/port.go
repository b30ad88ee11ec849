package messaging

import "context"

// Messenger is the provider-agnostic port for the outbound chat channel.
//
// Rules:
// - No provider SDK/API calls outside messaging adapters.
// - Idempotency is the caller's responsibility (via the returned external
//   message id); implementations must be safe for concurrent use.
// - Every call must respect the context deadline; a deadline expiry surfaces
//   as a retryable transport error.
type Messenger interface {
	Send(ctx context.Context, contact, text string) (SendResult, error)
	GetStatus(ctx context.Context, externalID string) (StatusResult, error)
}

// SendResult carries the provider-assigned message id for an accepted send.
type SendResult struct {
	ExternalMessageID string `json:"external_message_id"`
}

// StatusResult is the raw provider status for a previously sent message.
type StatusResult struct {
	Status string `json:"status"`
}
