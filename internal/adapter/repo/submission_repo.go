package repo

import (
	"context"
	"fmt"
	"time"

	"imageprompt/internal/domain"
	"imageprompt/internal/infra"
	"imageprompt/internal/sqlinline"
)

// SubmissionRepository persists the audit trail of settled submissions.
type SubmissionRepository struct {
	sql infra.SQLExecutor
}

// SubmissionStats summarises recent submissions.
type SubmissionStats struct {
	Total         int64   `json:"total"`
	Succeeded     int64   `json:"succeeded"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

func NewSubmissionRepository(sql infra.SQLExecutor) *SubmissionRepository {
	return &SubmissionRepository{sql: sql}
}

// EnsureSchema creates the audit table when it does not exist yet.
func (r *SubmissionRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QEnsurePromptSubmissions); err != nil {
		return fmt.Errorf("ensure prompt_submissions: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) Name() string { return "postgres" }

// SubmissionSettled inserts one audit row. Re-delivery of the same outcome id
// is a no-op.
func (r *SubmissionRepository) SubmissionSettled(ctx context.Context, o domain.Outcome) error {
	var providerStatus *int
	if o.ProviderStatus > 0 {
		providerStatus = &o.ProviderStatus
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertPromptSubmission,
		o.ID,
		string(o.PromptType),
		o.Locale,
		string(o.Status),
		providerStatus,
		o.FileID,
		o.ImageBytes,
		o.MediaType,
		o.Duration.Milliseconds(),
		o.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("insert prompt_submission: %w", err)
	}
	return nil
}

// StatsSince aggregates submissions settled at or after since.
func (r *SubmissionRepository) StatsSince(ctx context.Context, since time.Time) (SubmissionStats, error) {
	var s SubmissionStats
	if err := r.sql.QueryRow(ctx, sqlinline.QSubmissionStatsSince, since).Scan(&s.Total, &s.Succeeded, &s.AvgDurationMS); err != nil {
		return SubmissionStats{}, fmt.Errorf("submission stats: %w", err)
	}
	return s, nil
}
