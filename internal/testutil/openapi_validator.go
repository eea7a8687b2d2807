package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

// OpenAPIValidator checks API responses against the OpenAPI document.
type OpenAPIValidator struct {
	doc    *openapi3.T
	router routers.Router
}

// LoadOpenAPIValidator loads and validates the document at specPath.
// It does not need a *testing.T, so TestMain can call it.
func LoadOpenAPIValidator(specPath string) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("load OpenAPI spec from %s: %w", specPath, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate OpenAPI spec: %w", err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create OpenAPI router: %w", err)
	}

	return &OpenAPIValidator{doc: doc, router: router}, nil
}

// Health checks and the version endpoint are plain text and not part of the API.
func (v *OpenAPIValidator) skip(path string) bool {
	return !strings.HasPrefix(path, "/api/")
}

// ValidateResponse reports a test error when resp does not match the
// documented response for req. The response body is restored for the caller.
func (v *OpenAPIValidator) ValidateResponse(t *testing.T, req *http.Request, resp *http.Response) {
	t.Helper()

	if err := v.Check(req, resp); err != nil {
		t.Error(err)
	}
}

// Check validates resp against the documented response for req. Paths
// outside /api/ are not checked. The response body is restored.
func (v *OpenAPIValidator) Check(req *http.Request, resp *http.Response) error {
	if v.skip(req.URL.Path) {
		return nil
	}

	// the router matches documented paths, so drop scheme and host
	routeReq, err := http.NewRequest(req.Method, req.URL.Path, nil)
	if err != nil {
		return fmt.Errorf("create route request: %w", err)
	}

	route, pathParams, err := v.router.FindRoute(routeReq)
	if err != nil {
		return fmt.Errorf("OpenAPI: no route for %s %s: %w", req.Method, req.URL.Path, err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
		},
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			MultiError:            true,
			IncludeResponseStatus: true,
		},
	}

	if err := openapi3filter.ValidateResponse(context.Background(), input); err != nil {
		msg := err.Error()
		if len(msg) > 500 {
			msg = msg[:500] + "..."
		}
		return fmt.Errorf("OpenAPI response validation failed for %s %s (status %d):\n%s\nResponse body: %s",
			req.Method, req.URL.Path, resp.StatusCode, msg, truncate(body, 200))
	}
	return nil
}

func truncate(body []byte, n int) string {
	s := strings.TrimSpace(string(body))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
