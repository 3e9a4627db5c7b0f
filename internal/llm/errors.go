package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoAPIKey       = errors.New("API key is required")
	ErrInvalidBaseURL = errors.New("invalid base URL")
	ErrNilContext     = errors.New("context cannot be nil")
	ErrRequestFailed  = errors.New("request failed")
)

type APIErrorResponse struct {
	Error *APIErrorPayload `json:"error"`
}

type APIErrorPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param"`
	Code    any    `json:"code"`
}

type APIError struct {
	StatusCode int
	Message    string
	Type       string
	Param      string
	Code       any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return ErrRequestFailed
}

type RateLimitError struct {
	APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (status %d): %s", e.StatusCode, e.Message)
}

type AuthenticationError struct {
	APIError
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Message)
}

type TimeoutError struct {
	APIError
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timeout: %s", e.Message)
}

type InvalidRequestError struct {
	APIError
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request (status %d): %s", e.StatusCode, e.Message)
}

// DecodeError reports a response body that does not have the expected shape.
// It is never retried.
type DecodeError struct {
	StatusCode int
	Reason     string
	Body       string
	Err        error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response (status %d): %s: %v", e.StatusCode, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed response (status %d): %s", e.StatusCode, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type validator interface {
	validate() error
}

func parseAPIError(statusCode int, body []byte) error {
	var resp APIErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error == nil {
		return classifyStatus(statusCode, &APIError{
			StatusCode: statusCode,
			Message:    strings.TrimSpace(string(body)),
		}, string(body))
	}

	return classifyStatus(statusCode, apiErrorFrom(statusCode, resp.Error), string(body))
}

// decodeResponse turns a 2xx body into out. Providers sometimes answer 200
// with an error payload, which is reported like any other API error.
func decodeResponse(statusCode int, body []byte, out validator) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &DecodeError{StatusCode: statusCode, Reason: "empty body"}
	}

	var envelope APIErrorResponse
	if err := json.Unmarshal(trimmed, &envelope); err == nil && envelope.Error != nil {
		apiErr := apiErrorFrom(statusCode, envelope.Error)
		return classifyStatus(statusForType(envelope.Error.Type, statusCode), apiErr, string(trimmed))
	}

	if err := json.Unmarshal(trimmed, out); err != nil {
		return &DecodeError{StatusCode: statusCode, Reason: "invalid JSON", Body: truncate(string(trimmed), 256), Err: err}
	}

	if err := out.validate(); err != nil {
		var decErr *DecodeError
		if errors.As(err, &decErr) {
			decErr.StatusCode = statusCode
		}
		return err
	}

	return nil
}

func apiErrorFrom(statusCode int, p *APIErrorPayload) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    p.Message,
		Type:       p.Type,
		Param:      p.Param,
		Code:       p.Code,
	}
}

func statusForType(errType string, fallback int) int {
	switch errType {
	case "rate_limit_error", "rate_limit_exceeded", "insufficient_quota":
		return http.StatusTooManyRequests
	case "authentication_error", "invalid_api_key":
		return http.StatusUnauthorized
	case "invalid_request_error":
		return http.StatusBadRequest
	case "server_error", "api_error":
		return http.StatusInternalServerError
	case "timeout":
		return http.StatusGatewayTimeout
	default:
		return fallback
	}
}

func classifyStatus(statusCode int, apiErr *APIError, body string) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return &AuthenticationError{APIError: *apiErr}
	case http.StatusTooManyRequests:
		return &RateLimitError{
			APIError:   *apiErr,
			RetryAfter: parseRetryAfter(body),
		}
	case http.StatusBadRequest:
		return &InvalidRequestError{APIError: *apiErr}
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return &TimeoutError{APIError: *apiErr}
	case http.StatusInternalServerError:
		if apiErr.StatusCode < 500 {
			// error payload delivered with a 2xx status
			apiErr.StatusCode = http.StatusInternalServerError
		}
		return apiErr
	default:
		return apiErr
	}
}

func parseRetryAfter(body string) time.Duration {
	lowerBody := strings.ToLower(body)
	idx := strings.Index(lowerBody, "retry-after")
	if idx == -1 {
		return 0
	}

	rest := strings.TrimSpace(body[idx+len("retry-after"):])
	rest = strings.TrimLeft(rest, "\":= ")
	parts := strings.Fields(rest)
	if len(parts) == 0 {
		return 0
	}

	if n, err := strconv.Atoi(strings.Trim(parts[0], `",}`)); err == nil {
		return time.Duration(n) * time.Second
	}

	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func IsRateLimitError(err error) bool {
	var rateLimitErr *RateLimitError
	return errors.As(err, &rateLimitErr)
}

func IsAuthError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

func IsTimeoutError(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

func IsDecodeError(err error) bool {
	var decErr *DecodeError
	return errors.As(err, &decErr)
}

// IsRetryableError reports whether err is transient: rate limiting, timeouts,
// 5xx responses and transport failures.
func IsRetryableError(err error) bool {
	if err == nil || IsDecodeError(err) {
		return false
	}
	if IsRateLimitError(err) || IsTimeoutError(err) {
		return true
	}
	if IsAuthError(err) {
		return false
	}

	var invalidErr *InvalidRequestError
	if errors.As(err, &invalidErr) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 && apiErr.StatusCode < 600
	}

	return errors.Is(err, ErrRequestFailed)
}
