package intent

// Intent is the classified purpose of an inbound reply.
// The set is closed; persistence and event payloads use the string values as-is.
type Intent string

const (
	IntentConfirmed Intent = "CONFIRMED"
	IntentStarted   Intent = "STARTED"
	IntentCompleted Intent = "COMPLETED"
	IntentCancelled Intent = "CANCELLED"
	IntentNeedsInfo Intent = "NEEDS_INFO"
	IntentUnknown   Intent = "UNKNOWN"
)

// priority is the fixed evaluation order for classification.
// An explicit cancellation must not be shadowed by a later confirmation
// keyword, so the order is a policy decision and must not be reordered.
var priority = []Intent{
	IntentConfirmed,
	IntentCancelled,
	IntentCompleted,
	IntentStarted,
	IntentNeedsInfo,
}

// Valid reports whether v is one of the closed intent values.
func Valid(v Intent) bool {
	switch v {
	case IntentConfirmed, IntentStarted, IntentCompleted, IntentCancelled, IntentNeedsInfo, IntentUnknown:
		return true
	default:
		return false
	}
}
