package reporting

import (
	"context"
	"errors"
	"time"

	"marketplace-messaging/internal/interaction"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. Implementations query by
// creation time; the service does the aggregation.
type Repository interface {
	ListInteractions(ctx context.Context, from, to time.Time) ([]interaction.Interaction, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) InteractionSummary(ctx context.Context, req InteractionSummaryRequest) (InteractionSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return InteractionSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return InteractionSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListInteractions(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return InteractionSummary{}, err
	}

	out := InteractionSummary{IntentCounts: map[string]int{}}
	reached := 0
	for _, it := range rows {
		out.Total++
		out.TotalSendAttempts += it.Metadata.Retry.Attempts
		switch it.Status {
		case interaction.StatusPending:
			out.Pending++
		case interaction.StatusSent:
			out.Sent++
			reached++
		case interaction.StatusDelivered:
			out.Delivered++
			reached++
		case interaction.StatusResponded:
			out.Responded++
			reached++
			if it.ResponseIntent != "" {
				out.IntentCounts[string(it.ResponseIntent)]++
			}
		case interaction.StatusFailed:
			out.Failed++
			if it.Metadata.Retry.Permanent {
				out.PermanentFailures++
			}
		}
	}
	if reached > 0 {
		out.ResponseRate = float64(out.Responded) / float64(reached)
	}
	return out, nil
}
