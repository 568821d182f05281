package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrInvalidTransition = errors.New("invalid booking transition")
	ErrReindexInProgress = errors.New("vector sync already in progress")
)

// ValidationError carries a message per offending field
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// GatewayError is a failed checkout session creation
type GatewayError struct {
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	return "payment gateway error: " + e.Message
}

func (e *GatewayError) Unwrap() error { return e.Err }
