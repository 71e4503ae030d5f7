package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/morezero/domain-controller/pkg/dispatcher"
	"github.com/morezero/domain-controller/pkg/model"
	"github.com/morezero/domain-controller/pkg/registry"
)

// maxExecuteBody bounds the size of an operation posted to /execute.
const maxExecuteBody = 1 << 20

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/resource/", s.handleResource())
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", handleReady)
	mux.HandleFunc("/describe", s.handleDescribe())
	mux.HandleFunc("/execute", s.handleExecute())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - json encode: %v", logPrefix, err))
	}
}

// statusForError maps registry error codes to HTTP statuses.
func statusForError(err error) int {
	var regErr *registry.RegistryError
	if errors.As(err, &regErr) {
		switch regErr.Code {
		case registry.CodeNotFound:
			return http.StatusNotFound
		case registry.CodeInvalidArgument:
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		h := s.ctrl.Health(ctx)
		status := http.StatusOK
		if h.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	}
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleDescribe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		out, err := s.ctrl.Describe(dispatcher.DescribeParams{
			Address: r.URL.Query().Get("address"),
			Locale:  r.URL.Query().Get("locale"),
		})
		if err != nil {
			writeJSON(w, statusForError(err), registryErrorBody(err))
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func registryErrorBody(err error) *dispatcher.ErrorDetail {
	var regErr *registry.RegistryError
	if errors.As(err, &regErr) {
		return &dispatcher.ErrorDetail{Code: regErr.Code, Message: regErr.Message, Details: regErr.Details}
	}
	return &dispatcher.ErrorDetail{Code: registry.CodeInternal, Message: err.Error(), Retryable: true}
}

// handleExecute runs one operation posted as JSON. The body is either a bare operation or a
// full controller request envelope.
func (s *Server) handleExecute() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body model.Node
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExecuteBody)).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, &dispatcher.ErrorDetail{Code: registry.CodeInvalidArgument, Message: "Failed to decode operation"})
			return
		}

		req := &dispatcher.ControllerRequest{ID: r.Header.Get("X-Request-Id"), Method: dispatcher.MethodExecute, Operation: body}
		if _, isEnvelope := body["method"]; isEnvelope {
			data, _ := json.Marshal(body)
			req = &dispatcher.ControllerRequest{}
			if err := json.Unmarshal(data, req); err != nil {
				writeJSON(w, http.StatusBadRequest, &dispatcher.ErrorDetail{Code: registry.CodeInvalidArgument, Message: "Failed to decode request"})
				return
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		defer cancel()
		resp := s.ctrl.Dispatch(ctx, req)

		status := http.StatusOK
		if !resp.Ok && resp.Error != nil {
			switch resp.Error.Code {
			case dispatcher.CodeMethodNotFound, registry.CodeInvalidArgument, dispatcher.CodeIncompatibleVersion:
				status = http.StatusBadRequest
			default:
				status = http.StatusInternalServerError
			}
		}
		writeJSON(w, status, resp)
	}
}

// homePageTemplate is the HTML for the controller home page.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Domain Controller</title>
  <style>
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>Domain Controller</h1>

  <section>
    <h2>Health</h2>
    <p>Host: {{.Health.Host}} (management version {{.Health.ManagementVersion}})</p>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Domain model: {{if .Health.Checks.DomainModel}}OK{{else}}<span class="error">Failed</span>{{end}},
       database: {{if .Health.Checks.Database}}OK{{else}}<span class="error">Failed</span>{{end}},
       COMMS: {{if .Health.Checks.Comms}}OK{{else}}<span class="error">Failed</span>{{end}}</p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Resource types</h2>
    {{if .DescribeError}}
    <p class="error">Could not describe the root resource: {{.DescribeError}}</p>
    {{else}}
    <table>
      <thead><tr><th>Child type</th></tr></thead>
      <tbody>
        {{range .Describe.Children}}<tr><td><a href="/resource/{{.}}=*">{{.}}</a></td></tr>{{end}}
      </tbody>
    </table>
    <p><a href="/resource/">Root operations</a></p>
    {{end}}
  </section>
</body>
</html>
`

// resourcePageTemplate renders the describe output of one address.
const resourcePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>{{.Path}} - Domain Controller</title>
  <style>
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; }
  </style>
</head>
<body>
  <p><a href="/">Back</a> | <a href="/resource/{{.Trimmed}}{{if .Trimmed}}/{{end}}openapi.json">OpenAPI</a></p>
  <h1>{{.Path}}</h1>
  {{with .Describe.Description}}<p>{{index . "description"}}</p>{{end}}

  <h2>Attributes</h2>
  <table>
    <thead><tr><th>Name</th><th>Access</th><th>Description</th></tr></thead>
    <tbody>
      {{range .Describe.Attributes}}<tr><td>{{.Name}}</td><td>{{.Access}}</td><td>{{.Description}}</td></tr>{{end}}
    </tbody>
  </table>

  <h2>Operations</h2>
  <table>
    <thead><tr><th>Name</th><th>Flags</th><th>Inherited</th></tr></thead>
    <tbody>
      {{range .Describe.Operations}}<tr><td>{{.Name}}</td><td>{{range .Flags}}{{.}} {{end}}</td><td>{{.Inherited}}</td></tr>{{end}}
    </tbody>
  </table>

  <h2>Children</h2>
  <ul>
    {{range .Describe.Children}}<li><a href="/resource/{{$.Trimmed}}{{if $.Trimmed}}/{{end}}{{.}}=*">{{.}}</a></li>{{end}}
  </ul>
</body>
</html>
`

type homeData struct {
	Health        *dispatcher.HealthOutput
	Describe      *registry.DescribeOutput
	DescribeError string
}

func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{Health: s.ctrl.Health(ctx)}
		describe, err := s.ctrl.Describe(dispatcher.DescribeParams{})
		if err != nil {
			data.DescribeError = err.Error()
		} else {
			data.Describe = describe
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

type resourceData struct {
	Path     string
	Trimmed  string
	Describe *registry.DescribeOutput
}

// handleResource serves /resource/<key=value>/... as an HTML page, and
// /resource/<key=value>/.../openapi.json as an OpenAPI document of its operations.
func (s *Server) handleResource() http.HandlerFunc {
	tmpl := template.Must(template.New("resource").Parse(resourcePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/resource/"), "/")
		openAPI := false
		if trimmed == "openapi.json" || strings.HasSuffix(trimmed, "/openapi.json") {
			openAPI = true
			trimmed = strings.Trim(strings.TrimSuffix(trimmed, "openapi.json"), "/")
		}

		describe, err := s.ctrl.Describe(dispatcher.DescribeParams{Address: "/" + trimmed, Locale: r.URL.Query().Get("locale")})
		if err != nil {
			status := statusForError(err)
			if status == http.StatusNotFound {
				http.NotFound(w, r)
				return
			}
			http.Error(w, err.Error(), status)
			return
		}

		if openAPI {
			w.Header().Set("Cache-Control", "public, max-age=60")
			writeJSON(w, http.StatusOK, buildOpenAPISpec(describe, s.cfg.ManagementVersion))
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		data := resourceData{Path: "/" + trimmed, Trimmed: trimmed, Describe: describe}
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - resource template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// openAPI3 types for generating specs from describe output.
type openAPI3Spec struct {
	OpenAPI string                      `json:"openapi"`
	Info    openAPI3Info                `json:"info"`
	Paths   map[string]openAPI3PathItem `json:"paths"`
}

type openAPI3Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type openAPI3PathItem struct {
	Post *openAPI3Operation `json:"post,omitempty"`
}

type openAPI3Operation struct {
	Summary     string                      `json:"summary"`
	Description string                      `json:"description,omitempty"`
	OperationID string                      `json:"operationId"`
	Tags        []string                    `json:"tags,omitempty"`
	RequestBody *openAPI3RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]openAPI3Response `json:"responses"`
}

type openAPI3RequestBody struct {
	Content map[string]openAPI3MediaType `json:"content"`
}

type openAPI3Response struct {
	Description string                       `json:"description"`
	Content     map[string]openAPI3MediaType `json:"content,omitempty"`
}

type openAPI3MediaType struct {
	Schema map[string]interface{} `json:"schema,omitempty"`
}

// buildOpenAPISpec builds an OpenAPI 3.0 document with one path per operation visible at
// the described address. Operation flags become tags; attributes become request properties.
func buildOpenAPISpec(d *registry.DescribeOutput, version string) *openAPI3Spec {
	properties := map[string]interface{}{
		model.KeyOperation: map[string]interface{}{"type": "string"},
		model.KeyAddress:   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "object"}},
	}
	for _, a := range d.Attributes {
		properties[a.Name] = map[string]interface{}{"description": a.Description}
	}
	inputSchema := map[string]interface{}{"type": "object", "properties": properties}
	outputSchema := map[string]interface{}{"type": "object", "properties": map[string]interface{}{
		"outcome":             map[string]interface{}{"type": "string", "enum": []string{"success", "failed"}},
		"result":              map[string]interface{}{"type": "object"},
		"failure-description": map[string]interface{}{"type": "string"},
	}}

	paths := make(map[string]openAPI3PathItem, len(d.Operations))
	for _, op := range d.Operations {
		desc := ""
		if op.Description != nil {
			desc, _ = model.String(op.Description, "description")
		}
		tags := append([]string(nil), op.Flags...)
		sort.Strings(tags)
		paths["/"+op.Name] = openAPI3PathItem{
			Post: &openAPI3Operation{
				Summary:     op.Name,
				Description: desc,
				OperationID: op.Name,
				Tags:        tags,
				RequestBody: &openAPI3RequestBody{
					Content: map[string]openAPI3MediaType{
						"application/json": {Schema: inputSchema},
					},
				},
				Responses: map[string]openAPI3Response{
					"200": {
						Description: "Success",
						Content: map[string]openAPI3MediaType{
							"application/json": {Schema: outputSchema},
						},
					},
				},
			},
		}
	}

	title := d.Address
	if title == "" {
		title = "/"
	}
	desc := ""
	if d.Description != nil {
		desc, _ = model.String(d.Description, "description")
	}
	if desc == "" {
		desc = "Resource " + title
	}
	return &openAPI3Spec{
		OpenAPI: "3.0.0",
		Info:    openAPI3Info{Title: title, Description: desc, Version: version},
		Paths:   paths,
	}
}
