package imageprompt

import (
	"context"
	"fmt"

	"imageprompt/internal/domain"
)

// Observer is notified once per settled submission.
type Observer interface {
	Name() string
	SubmissionSettled(ctx context.Context, outcome domain.Outcome) error
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc struct {
	Label string
	Fn    func(ctx context.Context, outcome domain.Outcome) error
}

func (f ObserverFunc) Name() string { return f.Label }

func (f ObserverFunc) SubmissionSettled(ctx context.Context, outcome domain.Outcome) error {
	return f.Fn(ctx, outcome)
}

// notify fans the outcome out to every observer. Failures and panics are
// logged and never reach the caller.
func (s *Service) notify(ctx context.Context, outcome domain.Outcome) {
	if len(s.observers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.observerTimeout)
	defer cancel()

	for _, obs := range s.observers {
		if err := safeSettle(ctx, obs, outcome); err != nil {
			s.logger.Warn().
				Err(err).
				Str("observer", obs.Name()).
				Str("submission_id", outcome.ID).
				Msg("submission observer failed")
		}
	}
}

func safeSettle(ctx context.Context, obs Observer, outcome domain.Outcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return obs.SubmissionSettled(ctx, outcome)
}
