package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// ProgressFunc receives request-body transfer progress. total is -1 when the
// body length is unknown.
type ProgressFunc func(sent, total int64)

// Upload is what the controller sends to the image-to-prompt endpoint.
type Upload struct {
	Filename   string
	MediaType  string
	Data       []byte
	PromptType string
	UserQuery  string
	Locale     string
}

// Response is the endpoint's success body.
type Response struct {
	FileID   *string         `json:"fileId"`
	Workflow json.RawMessage `json:"workflow"`
}

// Transport sends one submission to the server.
type Transport interface {
	Submit(ctx context.Context, upload Upload, onProgress ProgressFunc) (Response, error)
}

// ServerError is a non-2xx answer from the endpoint.
type ServerError struct {
	StatusCode int
	Code       string
	Detail     string
	Message    string
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("run failed: %d %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// HTTPTransport posts multipart submissions and reports upload progress as
// the body is consumed by the HTTP client.
type HTTPTransport struct {
	Endpoint  string
	Client    *http.Client
	ChunkSize int
}

// NewHTTPTransport targets serverURL's /api/image-to-prompt route.
func NewHTTPTransport(serverURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Minute}
	}
	return &HTTPTransport{
		Endpoint:  strings.TrimRight(serverURL, "/") + "/api/image-to-prompt",
		Client:    client,
		ChunkSize: 32 << 10,
	}
}

func (t *HTTPTransport) Submit(ctx context.Context, upload Upload, onProgress ProgressFunc) (Response, error) {
	body, contentType, err := encodeForm(upload)
	if err != nil {
		return Response{}, err
	}
	total := int64(body.Len())
	reader := &progressReader{r: body, total: total, chunk: t.ChunkSize, fn: onProgress}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, reader)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if upload.Locale != "" {
		req.Header.Set("Accept-Language", upload.Locale)
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("network error during upload: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := &ServerError{StatusCode: resp.StatusCode, Body: string(raw)}
		var decoded struct {
			Error   string `json:"error"`
			Detail  string `json:"detail"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &decoded) == nil {
			serr.Code, serr.Detail, serr.Message = decoded.Error, decoded.Detail, decoded.Message
		}
		return Response{}, serr
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		// a 2xx body that is not JSON leaves the workflow empty; the
		// controller shows it as a degraded result
		return Response{}, nil
	}
	return out, nil
}

func encodeForm(upload Upload) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, strings.ReplaceAll(upload.Filename, `"`, "'")))
	mediaType := upload.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	header.Set("Content-Type", mediaType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("build form: %w", err)
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, "", fmt.Errorf("write form: %w", err)
	}
	if err := w.WriteField("promptType", upload.PromptType); err != nil {
		return nil, "", fmt.Errorf("write form: %w", err)
	}
	if err := w.WriteField("userQuery", upload.UserQuery); err != nil {
		return nil, "", fmt.Errorf("write form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	chunk int
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	if p.chunk > 0 && len(b) > p.chunk {
		b = b[:p.chunk]
	}
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.fn != nil {
			p.fn(p.sent, p.total)
		}
	}
	return n, err
}
