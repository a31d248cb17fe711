package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/doeshing/kshai/internal/domain"
)

// APIError surfaces backend errors with HTTP metadata.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error (%d, %s): %s", e.StatusCode, e.Type, e.Message)
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// readAPIError turns a failed HTTP response into a classified transport error.
func readAPIError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		apiErr.Type = env.Error.Type
		apiErr.Message = env.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return &domain.TransportError{
		Kind:     domain.ClassifyStatus(resp.StatusCode),
		Provider: provider,
		Err:      apiErr,
	}
}

// streamError classifies an error event delivered inside a stream.
func streamError(provider, errType, message string) error {
	kind := domain.TransportServer
	switch errType {
	case "authentication_error", "permission_error", "invalid_api_key":
		kind = domain.TransportAuth
	case "rate_limit_error", "rate_limit_exceeded", "insufficient_quota":
		kind = domain.TransportRateLimit
	case "invalid_request_error", "not_found_error":
		kind = domain.TransportProtocol
	}
	return &domain.TransportError{
		Kind:     kind,
		Provider: provider,
		Err:      &APIError{StatusCode: 200, Type: errType, Message: message},
	}
}

// networkError wraps dial, read and timeout failures.
func networkError(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, errConsumerStopped) {
		return err
	}
	var te *domain.TransportError
	if errors.As(err, &te) {
		return err
	}
	return &domain.TransportError{Kind: domain.TransportNetwork, Provider: provider, Err: err}
}

func protocolError(provider string, format string, args ...any) error {
	return &domain.TransportError{Kind: domain.TransportProtocol, Provider: provider, Err: fmt.Errorf(format, args...)}
}
