package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// InteractionSummaryRequest requests aggregated messaging metrics for a
// creation-time window.
type InteractionSummaryRequest struct {
	Range TimeRange `json:"range"`
}

type InteractionSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Responded int `json:"responded"`
	Failed    int `json:"failed"`

	// PermanentFailures counts failed interactions that will never be
	// retried; the rest of Failed is still retry-eligible.
	PermanentFailures int `json:"permanent_failures"`

	// ResponseRate is Responded over every interaction that reached the
	// recipient (sent or further).
	ResponseRate float64 `json:"response_rate"`

	// IntentCounts breaks recorded responses down by classified intent.
	IntentCounts map[string]int `json:"intent_counts"`

	TotalSendAttempts int `json:"total_send_attempts"`
}
