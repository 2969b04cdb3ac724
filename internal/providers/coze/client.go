// Package coze talks to the Coze open API: file upload and synchronous
// workflow runs.
package coze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imageprompt/internal/domain"
	"imageprompt/internal/infra"
)

const (
	uploadPath      = "/v1/files/upload"
	workflowRunPath = "/v1/workflow/run"
	defaultBaseURL  = "https://api.coze.cn"
)

// Credentials supplies the bearer token and workflow id. Both are looked up
// on every call.
type Credentials interface {
	Token() string
	WorkflowID() string
}

// Options configures the Coze client.
type Options struct {
	BaseURL        string
	Credentials    Credentials
	ProxyURL       *url.URL
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs the two provider calls of an image-to-prompt submission.
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	logger     *infra.Logger
}

type uploadResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

type workflowRunRequest struct {
	WorkflowID string                    `json:"workflow_id"`
	Parameters domain.WorkflowParameters `json:"parameters"`
	IsAsync    bool                      `json:"is_async"`
}

type staticCredentials struct{}

func (staticCredentials) Token() string      { return "" }
func (staticCredentials) WorkflowID() string { return "" }

// NewClient constructs a client. When no HTTPClient is injected a dedicated
// transport is built whose proxy comes only from Options.ProxyURL; process
// proxy variables are never consulted by the transport itself.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Transport: NewTransport(opts.ProxyURL), Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	creds := opts.Credentials
	if creds == nil {
		creds = staticCredentials{}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &Client{
		baseURL:    baseURL,
		creds:      creds,
		httpClient: httpClient,
		logger:     logger,
	}
}

// NewTransport returns the outbound transport. A nil proxy means direct
// connections.
func NewTransport(proxy *url.URL) *http.Transport {
	var proxyFunc func(*http.Request) (*url.URL, error)
	if proxy != nil {
		proxyFunc = http.ProxyURL(proxy)
	}
	return &http.Transport{
		Proxy: proxyFunc,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       60 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// UploadFile sends the image as multipart form content and returns the file
// token. A missing data.id is not an error: FileID is left nil.
func (c *Client) UploadFile(ctx context.Context, req domain.SubmissionRequest) (domain.UploadResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(req.Filename)))
	header.Set("Content-Type", req.MediaType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("coze: build upload form: %w", err)
	}
	if _, err := part.Write(req.Image); err != nil {
		return domain.UploadResult{}, fmt.Errorf("coze: write upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return domain.UploadResult{}, fmt.Errorf("coze: close upload form: %w", err)
	}

	raw, err := c.do(ctx, "upload", uploadPath, writer.FormDataContentType(), &buf)
	if err != nil {
		return domain.UploadResult{}, err
	}

	var decoded uploadResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return domain.UploadResult{}, fmt.Errorf("coze: decode upload response: %w", err)
	}
	result := domain.UploadResult{}
	if decoded.Data != nil {
		var id string
		if err := json.Unmarshal(decoded.Data.ID, &id); err == nil {
			result.FileID = &id
		}
	}
	if result.FileID == nil {
		c.logger.Warn().Int("code", decoded.Code).Str("msg", decoded.Msg).Msg("coze: upload response without data.id")
	} else {
		c.logger.Debug().Str("file_id", *result.FileID).Int64("bytes", req.Size()).Msg("coze: uploaded file")
	}
	return result, nil
}

// RunWorkflow invokes the configured workflow synchronously and returns the
// raw JSON body.
func (c *Client) RunWorkflow(ctx context.Context, params domain.WorkflowParameters) (json.RawMessage, error) {
	workflowID := c.creds.WorkflowID()
	body, err := json.Marshal(workflowRunRequest{
		WorkflowID: workflowID,
		Parameters: params,
		IsAsync:    false,
	})
	if err != nil {
		return nil, fmt.Errorf("coze: encode workflow request: %w", err)
	}

	raw, err := c.do(ctx, "workflow run", workflowRunPath, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, errors.New("coze: workflow response is not valid JSON")
	}
	c.logger.Debug().Str("workflow_id", workflowID).Int("bytes", len(raw)).Msg("coze: workflow run completed")
	return json.RawMessage(raw), nil
}

func (c *Client) do(ctx context.Context, op, path, contentType string, body io.Reader) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("coze: build %s request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+c.creds.Token())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("coze: %s request: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coze: read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn().
			Str("op", op).
			Int("status", resp.StatusCode).
			Str("body", truncate(string(raw), 512)).
			Msg("coze: provider rejected request")
		return nil, &domain.ProviderStatusError{Op: "coze " + op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
