package executors

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dispatch.evalgo.org/runtime"
)

// HTTP dispatches a routing key that is an http(s):// URL as a request,
// using the action's ContentType header and Payload as the request body.
type HTTP struct {
	Client *http.Client
	Method string
}

// NewHTTP creates an HTTP executor with a 30s default client timeout and
// POST as the default method.
func NewHTTP() *HTTP {
	return &HTTP{
		Client: &http.Client{Timeout: 30 * time.Second},
		Method: http.MethodPost,
	}
}

func (e *HTTP) Name() string { return "http" }

func (e *HTTP) CanHandle(action *runtime.Action) bool {
	if action == nil {
		return false
	}
	return strings.HasPrefix(action.RoutingKey, "http://") || strings.HasPrefix(action.RoutingKey, "https://")
}

func (e *HTTP) Execute(ctx context.Context, action *runtime.Action) (*runtime.Result, error) {
	result := &runtime.Result{StartTime: time.Now(), Status: runtime.StatusRunning, Metadata: make(map[string]interface{})}

	method := e.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, action.RoutingKey, bytes.NewReader(action.Payload))
	if err != nil {
		result.Status = runtime.StatusFailed
		result.Error = &runtime.Error{Message: fmt.Sprintf("failed to create HTTP request: %v", err), Code: "REQUEST_ERROR"}
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		return result, result.Error
	}

	contentType := action.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range action.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.Client.Do(req)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	if err != nil {
		result.Status = runtime.StatusFailed
		result.Error = &runtime.Error{Message: fmt.Sprintf("HTTP request failed: %v", err), Code: "HTTP_ERROR"}
		return result, result.Error
	}
	defer resp.Body.Close()

	result.Metadata["status_code"] = resp.StatusCode
	if resp.StatusCode >= 400 {
		result.Status = runtime.StatusFailed
		result.Error = &runtime.Error{
			Message: fmt.Sprintf("HTTP request returned status %d", resp.StatusCode),
			Code:    "HTTP_STATUS_ERROR",
			Details: map[string]interface{}{"status_code": resp.StatusCode},
		}
		return result, result.Error
	}

	result.Status = runtime.StatusCompleted
	return result, nil
}
