package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"imageprompt/internal/domain"
)

const redocHTML = `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>Image to Prompt API Docs</title>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <style>
      body {
        margin: 0;
        padding: 0;
      }
      redoc {
        display: block;
        height: 100vh;
      }
    </style>
  </head>
  <body>
    <redoc spec-url="/v1/openapi.json"></redoc>
    <script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
  </body>
</html>`

func stringSchema() *openapi3.Schema {
	return &openapi3.Schema{Type: &openapi3.Types{"string"}}
}

func integerSchema() *openapi3.Schema {
	return &openapi3.Schema{Type: &openapi3.Types{"integer"}}
}

func objectSchema(props map[string]*openapi3.Schema, required ...string) *openapi3.Schema {
	s := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas, len(props)),
		Required:   required,
	}
	for name, p := range props {
		s.Properties[name] = &openapi3.SchemaRef{Value: p}
	}
	return s
}

func jsonResponse(description string, schema *openapi3.Schema) *openapi3.ResponseRef {
	desc := description
	return &openapi3.ResponseRef{Value: &openapi3.Response{
		Description: &desc,
		Content:     openapi3.NewContentWithJSONSchema(schema),
	}}
}

func errorSchema(withDetail bool) *openapi3.Schema {
	props := map[string]*openapi3.Schema{
		"error":   stringSchema(),
		"message": stringSchema(),
	}
	required := []string{"error"}
	if withDetail {
		props["detail"] = stringSchema()
		required = append(required, "detail")
	}
	return objectSchema(props, required...)
}

func imageToPromptOperation(id string) *openapi3.Operation {
	promptTypes := make([]string, 0, len(domain.PromptTypes()))
	for _, pt := range domain.PromptTypes() {
		promptTypes = append(promptTypes, string(pt))
	}
	promptType := stringSchema()
	promptType.Pattern = "(?i)^(" + strings.Join(promptTypes, "|") + ")?$"
	promptType.Description = "Matched case-insensitively and forwarded as sent."

	file := stringSchema()
	file.Format = "binary"

	form := objectSchema(map[string]*openapi3.Schema{
		"file":       file,
		"promptType": promptType,
		"userQuery":  stringSchema(),
	}, "file")

	fileID := stringSchema()
	fileID.Nullable = true
	workflow := &openapi3.Schema{Description: "Raw workflow payload returned by the prompt provider."}

	responses := openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, jsonResponse("Workflow finished", objectSchema(map[string]*openapi3.Schema{
			"fileId":   fileID,
			"workflow": workflow,
		}, "fileId", "workflow"))),
		openapi3.WithStatus(http.StatusBadRequest, jsonResponse("No file or unknown promptType", errorSchema(false))),
		openapi3.WithStatus(http.StatusRequestEntityTooLarge, jsonResponse("Upload exceeds the size limit", errorSchema(false))),
		openapi3.WithStatus(http.StatusTooManyRequests, jsonResponse("Rate limited", errorSchema(false))),
		openapi3.WithStatus(http.StatusBadGateway, jsonResponse("Provider rejected the upload or workflow run", errorSchema(true))),
		openapi3.WithStatus(http.StatusInternalServerError, jsonResponse("Unexpected failure", errorSchema(false))),
	)

	return &openapi3.Operation{
		OperationID: id,
		Tags:        []string{"image-to-prompt"},
		Summary:     "Generate a text prompt from an image",
		RequestBody: &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithFormDataSchema(form)},
		Responses: responses,
	}
}

func healthOperation() *openapi3.Operation {
	responses := openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, jsonResponse("Service healthy", objectSchema(map[string]*openapi3.Schema{
			"status": stringSchema(),
		}, "status"))),
		openapi3.WithStatus(http.StatusServiceUnavailable, jsonResponse("A dependency is down", objectSchema(map[string]*openapi3.Schema{
			"status": stringSchema(),
			"checks": {Type: &openapi3.Types{"object"}},
		}, "status"))),
	)
	return &openapi3.Operation{OperationID: "health", Tags: []string{"ops"}, Summary: "Liveness and dependency checks", Responses: responses}
}

func statsOperation() *openapi3.Operation {
	avg := &openapi3.Schema{Type: &openapi3.Types{"number"}}
	responses := openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, jsonResponse("Submission totals for the last 24 hours", objectSchema(map[string]*openapi3.Schema{
			"since":           stringSchema(),
			"total":           integerSchema(),
			"succeeded":       integerSchema(),
			"failed":          integerSchema(),
			"avg_duration_ms": avg,
		}, "total", "succeeded", "failed"))),
		openapi3.WithStatus(http.StatusNotFound, jsonResponse("Auditing disabled", errorSchema(false))),
	)
	return &openapi3.Operation{OperationID: "stats24h", Tags: []string{"ops"}, Summary: "Recent submission statistics", Responses: responses}
}

// BuildOpenAPI assembles and validates the API description.
func BuildOpenAPI(ctx context.Context) (*openapi3.T, error) {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "Image to Prompt API",
			Version:     "1.0.0",
			Description: "Uploads an image to the prompt provider and returns the workflow result.",
		},
		Paths: openapi3.NewPaths(),
	}
	doc.Paths.Set("/api/image-to-prompt", &openapi3.PathItem{Post: imageToPromptOperation("imageToPrompt")})
	doc.Paths.Set("/v1/image-to-prompt", &openapi3.PathItem{Post: imageToPromptOperation("imageToPromptV1")})
	doc.Paths.Set("/v1/healthz", &openapi3.PathItem{Get: healthOperation()})
	doc.Paths.Set("/v1/stats/24h", &openapi3.PathItem{Get: statsOperation()})

	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("openapi: invalid document: %w", err)
	}
	return doc, nil
}

func renderOpenAPI(ctx context.Context) ([]byte, error) {
	doc, err := BuildOpenAPI(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func (a *App) OpenAPIJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.openAPISpec)
}

func (a *App) OpenAPIDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(redocHTML))
}
