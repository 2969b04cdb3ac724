package imageprompt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"imageprompt/internal/domain"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) UploadFile(ctx context.Context, req domain.SubmissionRequest) (domain.UploadResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.UploadResult), args.Error(1)
}

func (m *mockProvider) RunWorkflow(ctx context.Context, params domain.WorkflowParameters) (json.RawMessage, error) {
	args := m.Called(ctx, params)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []domain.Outcome
}

func (r *recordingObserver) Name() string { return "recording" }

func (r *recordingObserver) SubmissionSettled(_ context.Context, outcome domain.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

func strPtr(s string) *string { return &s }

func jpegRequest() domain.SubmissionRequest {
	return domain.SubmissionRequest{
		Image:      make([]byte, 2<<20),
		Filename:   "castle.jpg",
		MediaType:  "image/jpeg",
		PromptType: domain.PromptTypeMidjourney,
		UserQuery:  domain.DefaultUserQuery,
	}
}

func newTestService(t *testing.T, provider Provider, observers ...Observer) *Service {
	t.Helper()
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc, err := NewService(Options{
		Provider:  provider,
		Observers: observers,
		Clock: func() time.Time {
			tick = tick.Add(250 * time.Millisecond)
			return tick
		},
	})
	require.NoError(t, err)
	return svc
}

func TestSubmitUploadsThenRunsWorkflow(t *testing.T) {
	provider := new(mockProvider)
	workflow := json.RawMessage(`{"data":"{\"prompt\":\"a castle at dusk\"}"}`)
	var order []string
	provider.On("UploadFile", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "upload") }).
		Return(domain.UploadResult{FileID: strPtr("f1")}, nil).Once()
	provider.On("RunWorkflow", mock.Anything, domain.WorkflowParameters{
		Img:        `{"file_id":"f1"}`,
		PromptType: domain.PromptTypeMidjourney,
		UserQuery:  domain.DefaultUserQuery,
	}).
		Run(func(mock.Arguments) { order = append(order, "workflow") }).
		Return(workflow, nil).Once()

	observer := &recordingObserver{}
	svc := newTestService(t, provider, observer)

	result, err := svc.Submit(context.Background(), jpegRequest())
	require.NoError(t, err)
	require.NotNil(t, result.FileID)
	assert.Equal(t, "f1", *result.FileID)
	assert.JSONEq(t, string(workflow), string(result.Workflow))
	assert.Equal(t, []string{"upload", "workflow"}, order)
	provider.AssertExpectations(t)

	require.Len(t, observer.outcomes, 1)
	outcome := observer.outcomes[0]
	assert.Equal(t, domain.OutcomeSucceeded, outcome.Status)
	assert.Equal(t, int64(2<<20), outcome.ImageBytes)
	assert.Equal(t, 250*time.Millisecond, outcome.Duration)
	assert.NotEmpty(t, outcome.ID)
}

func TestSubmitUploadFailureNeverRunsWorkflow(t *testing.T) {
	provider := new(mockProvider)
	provider.On("UploadFile", mock.Anything, mock.Anything).
		Return(domain.UploadResult{}, &domain.ProviderStatusError{Op: "coze upload", StatusCode: http.StatusBadGateway, Body: "quota exceeded"}).Once()

	observer := &recordingObserver{}
	svc := newTestService(t, provider, observer)

	_, err := svc.Submit(context.Background(), jpegRequest())
	serr, ok := domain.AsSubmissionError(err)
	require.True(t, ok, "err = %v", err)
	assert.Equal(t, domain.KindUploadFailed, serr.Kind)
	assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
	assert.Equal(t, "quota exceeded", serr.ProviderBody)
	assert.Equal(t, http.StatusBadGateway, serr.HTTPStatus())

	provider.AssertNumberOfCalls(t, "UploadFile", 1)
	provider.AssertNotCalled(t, "RunWorkflow", mock.Anything, mock.Anything)

	require.Len(t, observer.outcomes, 1)
	assert.Equal(t, domain.OutcomeUploadFailed, observer.outcomes[0].Status)
	assert.Equal(t, http.StatusBadGateway, observer.outcomes[0].ProviderStatus)
}

func TestSubmitWorkflowFailure(t *testing.T) {
	provider := new(mockProvider)
	provider.On("UploadFile", mock.Anything, mock.Anything).Return(domain.UploadResult{FileID: strPtr("f9")}, nil)
	provider.On("RunWorkflow", mock.Anything, mock.Anything).
		Return(nil, &domain.ProviderStatusError{Op: "coze workflow run", StatusCode: 400, Body: `{"code":4000}`})

	svc := newTestService(t, provider)
	_, err := svc.Submit(context.Background(), jpegRequest())

	serr, ok := domain.AsSubmissionError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindWorkflowFailed, serr.Kind)
	assert.Equal(t, "coze workflow run failed", serr.Message)
	assert.Equal(t, `{"code":4000}`, serr.ProviderBody)
}

func TestSubmitNetworkErrorIsRequestError(t *testing.T) {
	provider := new(mockProvider)
	provider.On("UploadFile", mock.Anything, mock.Anything).
		Return(domain.UploadResult{}, errors.New("coze: upload request: connection reset by peer"))

	observer := &recordingObserver{}
	svc := newTestService(t, provider, observer)
	_, err := svc.Submit(context.Background(), jpegRequest())

	serr, ok := domain.AsSubmissionError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindNetwork, serr.Kind)
	assert.Equal(t, http.StatusInternalServerError, serr.HTTPStatus())
	assert.Contains(t, serr.Error(), "connection reset")
	provider.AssertNotCalled(t, "RunWorkflow", mock.Anything, mock.Anything)
	assert.Equal(t, domain.OutcomeRequestFailed, observer.outcomes[0].Status)
}

func TestSubmitForwardsNullFileID(t *testing.T) {
	provider := new(mockProvider)
	provider.On("UploadFile", mock.Anything, mock.Anything).Return(domain.UploadResult{}, nil)
	provider.On("RunWorkflow", mock.Anything, mock.MatchedBy(func(p domain.WorkflowParameters) bool {
		return p.Img == `{"file_id":null}`
	})).Return(json.RawMessage(`{"data":{}}`), nil)

	svc := newTestService(t, provider)
	result, err := svc.Submit(context.Background(), jpegRequest())
	require.NoError(t, err)
	assert.Nil(t, result.FileID)
	provider.AssertExpectations(t)
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*domain.SubmissionRequest)
		wantErr error
	}{
		{"no file", func(r *domain.SubmissionRequest) { r.Image = nil }, domain.ErrNoFile},
		{"unknown prompt type", func(r *domain.SubmissionRequest) { r.PromptType = "dall-e" }, domain.ErrInvalidPromptType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := new(mockProvider)
			svc := newTestService(t, provider)
			req := jpegRequest()
			tt.mutate(&req)

			_, err := svc.Submit(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
			serr, ok := domain.AsSubmissionError(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusBadRequest, serr.HTTPStatus())
			provider.AssertNotCalled(t, "UploadFile", mock.Anything, mock.Anything)
		})
	}
}

func TestPrepareAppliesDefaults(t *testing.T) {
	svc := newTestService(t, new(mockProvider))
	req, err := svc.Prepare(domain.SubmissionRequest{Image: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, DefaultFilename, req.Filename)
	assert.Equal(t, DefaultMediaType, req.MediaType)
}

func TestSubmitAcceptsLongFilenameAndQuery(t *testing.T) {
	longName := strings.Repeat("a", 296) + ".jpg"
	longQuery := strings.Repeat("q", 2001)

	provider := new(mockProvider)
	provider.On("UploadFile", mock.Anything, mock.MatchedBy(func(r domain.SubmissionRequest) bool {
		return r.Filename == longName
	})).Return(domain.UploadResult{FileID: strPtr("f1")}, nil).Once()
	provider.On("RunWorkflow", mock.Anything, mock.MatchedBy(func(p domain.WorkflowParameters) bool {
		return p.UserQuery == longQuery
	})).Return(json.RawMessage(`{}`), nil).Once()

	svc := newTestService(t, provider)
	req := jpegRequest()
	req.Filename = longName
	req.UserQuery = longQuery

	_, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	provider.AssertExpectations(t)
}

func TestSubmitForwardsPromptTypeVerbatim(t *testing.T) {
	provider := new(mockProvider)
	provider.On("UploadFile", mock.Anything, mock.Anything).Return(domain.UploadResult{FileID: strPtr("f1")}, nil)
	provider.On("RunWorkflow", mock.Anything, mock.MatchedBy(func(p domain.WorkflowParameters) bool {
		return p.PromptType == "Midjourney"
	})).Return(json.RawMessage(`{}`), nil).Once()

	observer := &recordingObserver{}
	svc := newTestService(t, provider, observer)
	req := jpegRequest()
	req.PromptType = "Midjourney"

	_, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	provider.AssertExpectations(t)
	require.Len(t, observer.outcomes, 1)
	assert.Equal(t, domain.PromptTypeMidjourney, observer.outcomes[0].PromptType)
}

func TestObserverFailureDoesNotFailSubmission(t *testing.T) {
	provider := new(mockProvider)
	provider.On("UploadFile", mock.Anything, mock.Anything).Return(domain.UploadResult{FileID: strPtr("f1")}, nil)
	provider.On("RunWorkflow", mock.Anything, mock.Anything).Return(json.RawMessage(`{}`), nil)

	failing := ObserverFunc{Label: "failing", Fn: func(context.Context, domain.Outcome) error {
		return errors.New("database down")
	}}
	panicking := ObserverFunc{Label: "panicking", Fn: func(context.Context, domain.Outcome) error {
		panic("boom")
	}}
	recorder := &recordingObserver{}

	svc := newTestService(t, provider, failing, panicking, recorder)
	_, err := svc.Submit(context.Background(), jpegRequest())
	require.NoError(t, err)
	assert.Len(t, recorder.outcomes, 1)
}

func TestNewServiceRequiresProvider(t *testing.T) {
	_, err := NewService(Options{})
	assert.Error(t, err)
}
