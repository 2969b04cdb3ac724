package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"imageprompt/internal/adapter/repo"
	"imageprompt/internal/domain"
	"imageprompt/internal/i18n"
	"imageprompt/internal/infra"
	"imageprompt/internal/middleware"
)

// Submitter runs one image-to-prompt submission.
type Submitter interface {
	Submit(ctx context.Context, req domain.SubmissionRequest) (domain.Submission, error)
}

// StatsSource aggregates settled submissions. It is nil when auditing is off.
type StatsSource interface {
	StatsSince(ctx context.Context, since time.Time) (repo.SubmissionStats, error)
}

// HealthCheck is a named dependency probe reported by Health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type App struct {
	Submitter      Submitter
	Stats          StatsSource
	Checks         []HealthCheck
	Logger         *infra.Logger
	MaxUploadBytes int64
	Now            func() time.Time

	openAPISpec []byte
}

// NewApp builds the handler container and renders the OpenAPI document once.
func NewApp(submitter Submitter, logger *infra.Logger, maxUploadBytes int64) (*App, error) {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	spec, err := renderOpenAPI(context.Background())
	if err != nil {
		return nil, err
	}
	return &App{
		Submitter:      submitter,
		Logger:         logger,
		MaxUploadBytes: maxUploadBytes,
		Now:            time.Now,
		openAPISpec:    spec,
	}, nil
}

type errorBody struct {
	Error   string  `json:"error"`
	Detail  *string `json:"detail,omitempty"`
	Message string  `json:"message,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// error writes {error, detail?, message}; message is the localized hint.
func (a *App) error(w http.ResponseWriter, r *http.Request, code int, errMsg string, detail *string, key i18n.Key) {
	a.json(w, code, errorBody{
		Error:   errMsg,
		Detail:  detail,
		Message: i18n.T(middleware.LocaleFromContext(r.Context()), key),
	})
}

func (a *App) logger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return a.Logger
}
