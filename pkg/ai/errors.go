package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies a generation failure.
type ErrorKind string

const (
	KindAuth     ErrorKind = "auth"
	KindQuota    ErrorKind = "quota"
	KindNetwork  ErrorKind = "network"
	KindEmpty    ErrorKind = "empty"
	KindTimeout  ErrorKind = "timeout"
	KindProvider ErrorKind = "provider"
)

// GenerationError is returned by every TextGenerator on failure.
type GenerationError struct {
	Provider string
	Kind     ErrorKind
	Status   int
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s generation %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s generation %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func statusError(provider string, status int, msg string) *GenerationError {
	kind := KindProvider
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindQuota
	case status >= 500:
		kind = KindNetwork
	}
	return &GenerationError{Provider: provider, Kind: kind, Status: status, Err: errors.New(msg)}
}

func transportError(provider string, err error) *GenerationError {
	kind := KindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &GenerationError{Provider: provider, Kind: kind, Err: err}
}

func emptyResponse(provider string) *GenerationError {
	return &GenerationError{Provider: provider, Kind: KindEmpty, Err: fmt.Errorf("empty response from %s", provider)}
}
