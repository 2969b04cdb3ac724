package domain

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PromptType selects the prompt dialect the workflow should produce.
type PromptType string

const (
	PromptTypeGeneral    PromptType = "general"
	PromptTypeFlux       PromptType = "flux"
	PromptTypeMidjourney PromptType = "midjourney"
	PromptTypeStable     PromptType = "stable"
)

// DefaultUserQuery is the instruction sent when the caller supplies none.
const DefaultUserQuery = "Please describe this image."

// PromptTypes lists the dialects offered to users, in display order.
func PromptTypes() []PromptType {
	return []PromptType{PromptTypeGeneral, PromptTypeFlux, PromptTypeMidjourney, PromptTypeStable}
}

// Canonical is the trimmed, lower-cased form used for validation, metrics and
// the audit trail. The provider always receives the value as submitted.
func (p PromptType) Canonical() PromptType {
	return PromptType(strings.ToLower(strings.TrimSpace(string(p))))
}

// Known reports whether p is empty or one of PromptTypes, ignoring case.
func (p PromptType) Known() bool {
	c := p.Canonical()
	if c == "" {
		return true
	}
	for _, known := range PromptTypes() {
		if c == known {
			return true
		}
	}
	return false
}

// Label is the display name of the prompt type, e.g. "Midjourney".
func (p PromptType) Label() string {
	c := p.Canonical()
	if c == "" {
		return "Default"
	}
	return cases.Title(language.English).String(string(c))
}

// ParsePromptType trims raw and checks it case-insensitively. The trimmed
// value keeps its casing because the workflow receives it verbatim. An empty
// value is allowed; any other unknown value yields ErrInvalidPromptType.
func ParsePromptType(raw string) (PromptType, error) {
	pt := PromptType(strings.TrimSpace(raw))
	if !pt.Known() {
		return "", ErrInvalidPromptType
	}
	return pt, nil
}

// SubmissionRequest is one uploaded image plus the workflow parameters. It
// lives only for the duration of a single orchestrator call.
type SubmissionRequest struct {
	Image      []byte     `validate:"required"`
	Filename   string     `validate:"required"`
	MediaType  string     `validate:"required"`
	PromptType PromptType `validate:"prompttype"`
	UserQuery  string
	Locale     string
}

// Size returns the payload length in bytes.
func (r SubmissionRequest) Size() int64 {
	return int64(len(r.Image))
}

// UploadResult carries the provider file token. FileID is nil when the
// provider response had no data.id.
type UploadResult struct {
	FileID *string
}

// WorkflowParameters is the composite parameter object of a workflow run.
// Img holds the JSON text {"file_id": ...}.
type WorkflowParameters struct {
	Img        string     `json:"img"`
	PromptType PromptType `json:"promptType"`
	UserQuery  string     `json:"userQuery"`
}

// Submission is the orchestrator result returned to HTTP callers verbatim.
type Submission struct {
	FileID   *string         `json:"fileId"`
	Workflow json.RawMessage `json:"workflow"`
}

// OutcomeStatus classifies how a submission settled.
type OutcomeStatus string

const (
	OutcomeSucceeded      OutcomeStatus = "succeeded"
	OutcomeUploadFailed   OutcomeStatus = "upload_failed"
	OutcomeWorkflowFailed OutcomeStatus = "workflow_failed"
	OutcomeRequestFailed  OutcomeStatus = "request_failed"
)

// Outcome is the audit record emitted once per settled submission. It never
// carries the image bytes or the generated prompt text.
type Outcome struct {
	ID             string        `json:"id"`
	PromptType     PromptType    `json:"prompt_type"`
	Locale         string        `json:"locale,omitempty"`
	Status         OutcomeStatus `json:"status"`
	ProviderStatus int           `json:"provider_status,omitempty"`
	FileID         *string       `json:"file_id"`
	ImageBytes     int64         `json:"image_bytes"`
	MediaType      string        `json:"media_type"`
	Duration       time.Duration `json:"duration_ns"`
	SettledAt      time.Time     `json:"settled_at"`
}
