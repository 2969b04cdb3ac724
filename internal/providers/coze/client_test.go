package coze

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"imageprompt/internal/domain"
)

type fakeCredentials struct {
	mu       sync.Mutex
	token    string
	workflow string
}

func (f *fakeCredentials) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeCredentials) WorkflowID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workflow
}

func (f *fakeCredentials) rotate(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func sampleRequest() domain.SubmissionRequest {
	return domain.SubmissionRequest{
		Image:      []byte{0xff, 0xd8, 0xff, 0xe0, 0x00},
		Filename:   "castle.jpg",
		MediaType:  "image/jpeg",
		PromptType: domain.PromptTypeMidjourney,
		UserQuery:  domain.DefaultUserQuery,
	}
}

func TestUploadFileSendsMultipartWithBearer(t *testing.T) {
	var gotAuth, gotFilename, gotPartType string
	var gotBytes []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != uploadPath {
			t.Errorf("path = %q, want %q", r.URL.Path, uploadPath)
		}
		gotAuth = r.Header.Get("Authorization")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		gotPartType = header.Header.Get("Content-Type")
		gotBytes, _ = io.ReadAll(file)
		_, _ = w.Write([]byte(`{"code":0,"msg":"","data":{"id":"f1","bytes":5}}`))
	}))
	defer srv.Close()

	creds := &fakeCredentials{token: "tok-1", workflow: "wf-1"}
	client := NewClient(Options{BaseURL: srv.URL + "/", Credentials: creds})

	result, err := client.UploadFile(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("UploadFile returned error: %v", err)
	}
	if result.FileID == nil || *result.FileID != "f1" {
		t.Fatalf("FileID = %v, want f1", result.FileID)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotFilename != "castle.jpg" {
		t.Fatalf("filename = %q", gotFilename)
	}
	if gotPartType != "image/jpeg" {
		t.Fatalf("part content type = %q", gotPartType)
	}
	if string(gotBytes) != string(sampleRequest().Image) {
		t.Fatalf("uploaded bytes = %v", gotBytes)
	}
}

func TestUploadFileMissingIDIsTolerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":{}}`))
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	result, err := client.UploadFile(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("UploadFile returned error: %v", err)
	}
	if result.FileID != nil {
		t.Fatalf("FileID = %q, want nil", *result.FileID)
	}
}

func TestUploadFileNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("quota exceeded"))
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	_, err := client.UploadFile(context.Background(), sampleRequest())

	var statusErr *domain.ProviderStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want ProviderStatusError", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway || statusErr.Body != "quota exceeded" {
		t.Fatalf("status error = %+v", statusErr)
	}
}

func TestRunWorkflowPayload(t *testing.T) {
	var got map[string]any
	var gotAuth, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != workflowRunPath {
			t.Errorf("path = %q, want %q", r.URL.Path, workflowRunPath)
		}
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"code":0,"data":"{\"prompt\":\"a castle at dusk\"}"}`))
	}))
	defer srv.Close()

	creds := &fakeCredentials{token: "tok-1", workflow: "wf-42"}
	client := NewClient(Options{BaseURL: srv.URL, Credentials: creds})
	creds.rotate("tok-2")

	raw, err := client.RunWorkflow(context.Background(), domain.WorkflowParameters{
		Img:        `{"file_id":"f1"}`,
		PromptType: domain.PromptTypeMidjourney,
		UserQuery:  "Please describe this image.",
	})
	if err != nil {
		t.Fatalf("RunWorkflow returned error: %v", err)
	}
	if string(raw) != `{"code":0,"data":"{\"prompt\":\"a castle at dusk\"}"}` {
		t.Fatalf("raw = %s", raw)
	}
	if gotAuth != "Bearer tok-2" {
		t.Fatalf("Authorization = %q, want rotated token", gotAuth)
	}
	if gotType != "application/json" {
		t.Fatalf("Content-Type = %q", gotType)
	}
	if got["workflow_id"] != "wf-42" {
		t.Fatalf("workflow_id = %v", got["workflow_id"])
	}
	if got["is_async"] != false {
		t.Fatalf("is_async = %v, want false", got["is_async"])
	}
	params, ok := got["parameters"].(map[string]any)
	if !ok {
		t.Fatalf("parameters missing: %#v", got)
	}
	if params["img"] != `{"file_id":"f1"}` {
		t.Fatalf("img = %v", params["img"])
	}
	if params["promptType"] != "midjourney" || params["userQuery"] != "Please describe this image." {
		t.Fatalf("parameters = %#v", params)
	}
}

type captureTransport struct {
	req    *http.Request
	body   []byte
	status int
	reply  string
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.req = req
	if req.Body != nil {
		c.body, _ = io.ReadAll(req.Body)
	}
	return &http.Response{
		StatusCode: c.status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(c.reply)),
		Request:    req,
	}, nil
}

func TestRunWorkflowEmptyCredentialsStillSent(t *testing.T) {
	capture := &captureTransport{status: http.StatusUnauthorized, reply: `{"code":4100,"msg":"authentication is invalid"}`}
	client := NewClient(Options{BaseURL: "https://coze.test", HTTPClient: &http.Client{Transport: capture}})
	_, err := client.RunWorkflow(context.Background(), domain.WorkflowParameters{Img: `{"file_id":null}`})

	var statusErr *domain.ProviderStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 ProviderStatusError", err)
	}
	if capture.req == nil {
		t.Fatalf("no request sent")
	}
	if got := capture.req.Header.Get("Authorization"); got != "Bearer " {
		t.Fatalf("Authorization = %q, want empty bearer", got)
	}
	var got map[string]any
	if err := json.Unmarshal(capture.body, &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got["workflow_id"] != "" {
		t.Fatalf("workflow_id = %v, want empty string", got["workflow_id"])
	}
}

func TestRunWorkflowInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>gateway</html>"))
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	_, err := client.RunWorkflow(context.Background(), domain.WorkflowParameters{})
	if err == nil {
		t.Fatalf("expected error for non-JSON body")
	}
	var statusErr *domain.ProviderStatusError
	if errors.As(err, &statusErr) {
		t.Fatalf("invalid JSON must not be reported as a provider status error")
	}
}

func TestNewTransportProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "https://api.coze.cn/v1/files/upload", nil)

	direct := NewTransport(nil)
	if direct.Proxy != nil {
		t.Fatalf("expected no proxy func without explicit proxy")
	}

	proxyURL, _ := url.Parse("http://proxy.internal:3128")
	proxied := NewTransport(proxyURL)
	got, err := proxied.Proxy(req)
	if err != nil {
		t.Fatalf("Proxy returned error: %v", err)
	}
	if got.String() != "http://proxy.internal:3128" {
		t.Fatalf("proxy = %v", got)
	}
}
