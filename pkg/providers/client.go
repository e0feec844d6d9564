package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// apiError is a non-2xx response from a vendor API. The body snippet is kept
// so connection-test messages can surface the remote error description.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// isAuthError reports whether an error chain contains a 401/403 response.
func isAuthError(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden
	}
	return false
}

const maxErrorBody = 512

// getJSON issues an authenticated GET and decodes the JSON response into out.
// The header function attaches provider-specific auth on each call.
func getJSON(ctx context.Context, client *http.Client, url string, auth func(*http.Request), out any) error {
	return doJSON(ctx, client, http.MethodGet, url, auth, nil, out)
}

// doJSON issues a request with a JSON body (when body is non-nil) and decodes
// the JSON response into out (when out is non-nil).
func doJSON(ctx context.Context, client *http.Client, method, url string, auth func(*http.Request), body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = strings.NewReader(string(data))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != nil {
		auth(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// bearerAuth attaches a bearer token to each request.
func bearerAuth(token string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// basicAuth attaches an Authorization: Basic header built from user:secret.
func basicAuth(user, secret string) func(*http.Request) {
	encoded := base64.StdEncoding.EncodeToString([]byte(user + ":" + secret))
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Basic "+encoded)
	}
}

// headerAuth attaches a static header to each request.
func headerAuth(name, value string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set(name, value)
	}
}

// truncate bounds a detail list length in place-friendly form.
func truncate[T any](list []T, max int) []T {
	if len(list) > max {
		return list[:max]
	}
	return list
}
