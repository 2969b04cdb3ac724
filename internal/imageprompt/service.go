// Package imageprompt orchestrates one image-to-prompt submission against the
// prompt provider and normalizes the provider's loosely shaped result.
package imageprompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imageprompt/internal/domain"
	"imageprompt/internal/infra"
)

const (
	DefaultFilename  = "upload.jpg"
	DefaultMediaType = "application/octet-stream"
)

// Provider is the remote prompt service: upload first, then a synchronous
// workflow run that consumes the returned file id.
type Provider interface {
	UploadFile(ctx context.Context, req domain.SubmissionRequest) (domain.UploadResult, error)
	RunWorkflow(ctx context.Context, params domain.WorkflowParameters) (json.RawMessage, error)
}

// Options configures the Service.
type Options struct {
	Provider        Provider
	Observers       []Observer
	Logger          *infra.Logger
	Clock           func() time.Time
	ObserverTimeout time.Duration
}

// Service is the submission orchestrator. It holds no per-submission state
// and is safe for concurrent use.
type Service struct {
	provider        Provider
	observers       []Observer
	validate        *validator.Validate
	logger          *infra.Logger
	now             func() time.Time
	observerTimeout time.Duration
}

// NewService wires a Service. Provider is required.
func NewService(opts Options) (*Service, error) {
	if opts.Provider == nil {
		return nil, errors.New("imageprompt: provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	timeout := opts.ObserverTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	validate := validator.New()
	if err := validate.RegisterValidation("prompttype", func(fl validator.FieldLevel) bool {
		return domain.PromptType(fl.Field().String()).Known()
	}); err != nil {
		return nil, fmt.Errorf("imageprompt: register prompttype rule: %w", err)
	}
	return &Service{
		provider:        opts.Provider,
		observers:       opts.Observers,
		validate:        validate,
		logger:          logger,
		now:             now,
		observerTimeout: timeout,
	}, nil
}

// Prepare fills defaults and validates a request. The returned error is a
// *domain.SubmissionError of kind validation.
func (s *Service) Prepare(req domain.SubmissionRequest) (domain.SubmissionRequest, error) {
	if len(req.Image) == 0 {
		return req, domain.ValidationError(domain.ErrNoFile)
	}
	if strings.TrimSpace(req.Filename) == "" {
		req.Filename = DefaultFilename
	}
	if strings.TrimSpace(req.MediaType) == "" {
		req.MediaType = DefaultMediaType
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Field() == "PromptType" {
					return req, domain.ValidationError(domain.ErrInvalidPromptType)
				}
			}
		}
		return req, domain.ValidationError(fmt.Errorf("invalid submission: %w", err))
	}
	return req, nil
}

// Submit uploads the image and, only after the upload succeeded, runs the
// workflow with the returned file id. Provider rejections come back as
// upload or workflow failures; anything else is a request error.
func (s *Service) Submit(ctx context.Context, req domain.SubmissionRequest) (domain.Submission, error) {
	req, err := s.Prepare(req)
	if err != nil {
		return domain.Submission{}, err
	}

	started := s.now()
	outcome := domain.Outcome{
		ID:         uuid.NewString(),
		PromptType: req.PromptType.Canonical(),
		Locale:     req.Locale,
		ImageBytes: req.Size(),
		MediaType:  req.MediaType,
	}
	log := s.logger.With().Str("submission_id", outcome.ID).Str("prompt_type", string(outcome.PromptType)).Logger()

	settle := func(status domain.OutcomeStatus, providerStatus int) {
		outcome.Status = status
		outcome.ProviderStatus = providerStatus
		outcome.SettledAt = s.now()
		outcome.Duration = outcome.SettledAt.Sub(started)
		s.notify(ctx, outcome)
	}

	upload, err := s.provider.UploadFile(ctx, req)
	if err != nil {
		serr := classifyFailure(err, domain.UploadFailed)
		log.Error().Err(err).Int("provider_status", serr.StatusCode).Str("detail", serr.ProviderBody).Msg("upload step failed")
		settle(serr.OutcomeStatus(), serr.StatusCode)
		return domain.Submission{}, serr
	}
	outcome.FileID = upload.FileID

	img, err := json.Marshal(struct {
		FileID *string `json:"file_id"`
	}{upload.FileID})
	if err != nil {
		serr := domain.RequestError(err)
		settle(serr.OutcomeStatus(), 0)
		return domain.Submission{}, serr
	}

	workflow, err := s.provider.RunWorkflow(ctx, domain.WorkflowParameters{
		Img:        string(img),
		PromptType: req.PromptType,
		UserQuery:  req.UserQuery,
	})
	if err != nil {
		serr := classifyFailure(err, domain.WorkflowFailed)
		log.Error().Err(err).Int("provider_status", serr.StatusCode).Str("detail", serr.ProviderBody).Msg("workflow step failed")
		settle(serr.OutcomeStatus(), serr.StatusCode)
		return domain.Submission{}, serr
	}

	settle(domain.OutcomeSucceeded, 0)
	log.Info().Bool("file_id_present", upload.FileID != nil).Dur("took", outcome.Duration).Msg("submission completed")
	return domain.Submission{FileID: upload.FileID, Workflow: workflow}, nil
}

func classifyFailure(err error, rejected func(int, string) *domain.SubmissionError) *domain.SubmissionError {
	var statusErr *domain.ProviderStatusError
	if errors.As(err, &statusErr) {
		serr := rejected(statusErr.StatusCode, statusErr.Body)
		serr.Cause = err
		return serr
	}
	return domain.RequestError(err)
}
