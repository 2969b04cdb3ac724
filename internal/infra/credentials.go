package infra

import (
	"os"
	"strings"
)

const (
	envProviderToken = "COZE_API_TOKEN"
	envWorkflowID    = "COZE_WORKFLOW_ID"
)

// EnvCredentials reads the provider credential and workflow identifier from
// the process environment on every call, so a rotated token is picked up
// without a restart. Missing values come back as empty strings.
type EnvCredentials struct{}

// Token returns the bearer credential for the prompt provider.
func (EnvCredentials) Token() string {
	return strings.TrimSpace(os.Getenv(envProviderToken))
}

// WorkflowID returns the provider workflow identifier.
func (EnvCredentials) WorkflowID() string {
	return strings.TrimSpace(os.Getenv(envWorkflowID))
}
