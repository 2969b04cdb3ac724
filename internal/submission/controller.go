// Package submission is the client side of the image-to-prompt flow: it holds
// the selected file, drives one submission at a time and maps its phases onto
// a progress target.
package submission

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"imageprompt/internal/domain"
	"imageprompt/internal/i18n"
	"imageprompt/internal/imageprompt"
	"imageprompt/internal/infra"
)

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateFileSelected
	StateSubmitting
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFileSelected:
		return "file_selected"
	case StateSubmitting:
		return "submitting"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	targetSubmitted  = 5
	targetUploadSpan = 60
	targetResponded  = 85
	targetDone       = 100

	unknownTotalStep = 10

	// DefaultResetDelay is how long a finished submission keeps its progress
	// target before it drops back to 0.
	DefaultResetDelay = 900 * time.Millisecond
)

// ProgressSink receives progress targets. *progress.Animator implements it.
type ProgressSink interface {
	SetTarget(v float64)
	Target() float64
}

// Timer is the handle returned by AfterFunc.
type Timer interface {
	Stop() bool
}

// Preview describes the selected file.
type Preview struct {
	Filename  string
	MediaType string
	Size      int64
	Width     int
	Height    int
}

// Result is what a completed submission displays.
type Result struct {
	PromptText string
	Degraded   bool
	Source     string
	FileID     *string
}

// Failure is the user-facing error returned by Generate. Err keeps the
// diagnostic cause.
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string { return f.Message }
func (f *Failure) Unwrap() error { return f.Err }

// View is a consistent snapshot of the controller.
type View struct {
	State   State
	Preview *Preview
	Result  *Result
	Error   string
	Target  float64
}

// Options configures a Controller.
type Options struct {
	Transport  Transport
	Progress   ProgressSink
	Logger     *infra.Logger
	Locale     string
	PromptType domain.PromptType
	UserQuery  string
	ResetDelay time.Duration
	AfterFunc  func(d time.Duration, f func()) Timer
}

// Controller drives the Idle, FileSelected, Submitting, Completed and Failed
// states. Only one submission may be in flight.
type Controller struct {
	transport  Transport
	progress   ProgressSink
	logger     *infra.Logger
	locale     string
	resetDelay time.Duration
	afterFunc  func(time.Duration, func()) Timer

	mu         sync.Mutex
	state      State
	file       *Upload
	preview    *Preview
	promptType domain.PromptType
	userQuery  string
	result     *Result
	errMsg     string
	gen        uint64
	resetTimer Timer
}

// NewController builds a controller in StateIdle.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	delay := opts.ResetDelay
	if delay <= 0 {
		delay = DefaultResetDelay
	}
	after := opts.AfterFunc
	if after == nil {
		after = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	locale := opts.Locale
	if !i18n.Supported(locale) {
		locale = i18n.English
	}
	pt := opts.PromptType
	if pt == "" {
		pt = domain.PromptTypeMidjourney
	}
	query := opts.UserQuery
	if query == "" {
		query = domain.DefaultUserQuery
	}
	return &Controller{
		transport:  opts.Transport,
		progress:   opts.Progress,
		logger:     logger,
		locale:     locale,
		resetDelay: delay,
		afterFunc:  after,
		promptType: pt,
		userQuery:  query,
	}
}

// SelectFile holds the file locally and builds its preview. Nothing is sent.
func (c *Controller) SelectFile(filename, mediaType string, data []byte) (Preview, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSubmitting {
		return Preview{}, &Failure{Message: i18n.T(c.locale, i18n.MsgSubmissionBusy), Err: domain.ErrSubmissionInFlight}
	}
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	preview := Preview{Filename: filename, MediaType: mediaType, Size: int64(len(data))}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		preview.Width, preview.Height = cfg.Width, cfg.Height
	}
	c.file = &Upload{Filename: filename, MediaType: mediaType, Data: data}
	c.preview = &preview
	c.state = StateFileSelected
	c.result = nil
	c.errMsg = ""
	return preview, nil
}

// SetPromptType changes the dialect used by the next submission.
func (c *Controller) SetPromptType(pt domain.PromptType) {
	c.mu.Lock()
	c.promptType = pt
	c.mu.Unlock()
}

// SetUserQuery changes the instruction used by the next submission.
func (c *Controller) SetUserQuery(q string) {
	c.mu.Lock()
	c.userQuery = q
	c.mu.Unlock()
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{State: c.state, Preview: c.preview, Result: c.result, Error: c.errMsg}
	if c.progress != nil {
		v.Target = c.progress.Target()
	}
	return v
}

// Generate submits the selected file and blocks until the server answered.
// Without a selected file it fails immediately and leaves the state alone;
// while another submission is running it returns domain.ErrSubmissionInFlight.
func (c *Controller) Generate(ctx context.Context) (Result, error) {
	c.mu.Lock()
	if c.file == nil {
		c.mu.Unlock()
		return Result{}, &Failure{Message: i18n.T(c.locale, i18n.MsgSelectImageFirst), Err: domain.ValidationError(domain.ErrNoFile)}
	}
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return Result{}, &Failure{Message: i18n.T(c.locale, i18n.MsgSubmissionBusy), Err: domain.ErrSubmissionInFlight}
	}
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.gen++
	gen := c.gen
	c.state = StateSubmitting
	c.result = nil
	c.errMsg = ""
	upload := *c.file
	upload.PromptType = string(c.promptType)
	upload.UserQuery = c.userQuery
	upload.Locale = c.locale
	c.setTarget(targetSubmitted)
	c.mu.Unlock()

	resp, err := c.transport.Submit(ctx, upload, func(sent, total int64) {
		c.onUploadProgress(gen, sent, total)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.scheduleReset(gen)

	if err != nil {
		c.state = StateFailed
		c.errMsg = i18n.T(c.locale, i18n.MsgGenerationFailed)
		event := c.logger.Error().Err(err)
		var serr *ServerError
		if errors.As(err, &serr) {
			event = event.Int("status", serr.StatusCode).Str("detail", serr.Detail).Str("server_message", serr.Message)
		}
		event.Msg("generation failed")
		return Result{}, &Failure{Message: c.errMsg, Err: err}
	}

	c.raiseTarget(targetResponded)
	result := Result{FileID: resp.FileID}
	if p, ok := imageprompt.Normalize(resp.Workflow); ok {
		result.PromptText, result.Source = p.Text, p.Source
	} else {
		result.PromptText, result.Degraded = imageprompt.Diagnostic(resp.Workflow), true
		c.logger.Warn().RawJSON("workflow", rawOrNull(resp.Workflow)).Msg("prompt field not found, inspect workflow")
	}
	c.raiseTarget(targetDone)
	c.state = StateCompleted
	c.result = &result
	return result, nil
}

// Clear drops the selected file and returns to StateIdle.
func (c *Controller) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSubmitting {
		return domain.ErrSubmissionInFlight
	}
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.gen++
	c.state = StateIdle
	c.file, c.preview, c.result, c.errMsg = nil, nil, nil, ""
	c.setTarget(0)
	return nil
}

func (c *Controller) onUploadProgress(gen uint64, sent, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != StateSubmitting {
		return
	}
	var next float64
	if total > 0 {
		next = math.Round(float64(sent) / float64(total) * targetUploadSpan)
	} else {
		next = math.Min(targetUploadSpan, c.currentTarget()+unknownTotalStep)
	}
	c.raiseTarget(next)
}

func (c *Controller) scheduleReset(gen uint64) {
	c.resetTimer = c.afterFunc(c.resetDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen || c.state == StateSubmitting {
			return
		}
		c.setTarget(0)
		c.resetTimer = nil
	})
}

// raiseTarget never lowers the target; upload callbacks may jitter.
func (c *Controller) raiseTarget(v float64) {
	if v > c.currentTarget() {
		c.setTarget(v)
	}
}

func (c *Controller) setTarget(v float64) {
	if c.progress != nil {
		c.progress.SetTarget(v)
	}
}

func (c *Controller) currentTarget() float64 {
	if c.progress == nil {
		return 0
	}
	return c.progress.Target()
}

func rawOrNull(raw []byte) []byte {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null")
	}
	return raw
}
