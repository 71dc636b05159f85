package main

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Request failures returned by a Session.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnreachable  = errors.New("controller unreachable")
	ErrDecode       = errors.New("malformed response")
)

// Pipeline stage failures. A FabricError matches exactly one of these
// with errors.Is.
var (
	ErrAuth        = errors.New("authentication failed")
	ErrRead        = errors.New("read failed")
	ErrWrite       = errors.New("write failed")
	ErrSelection   = errors.New("no valid group selected")
	ErrAssociation = errors.New("association failed")
	ErrDeclined    = errors.New("declined by operator")
	ErrCancelled   = errors.New("run cancelled")
)

// HTTPError is a non-2xx response. A 401 or 403 also matches
// ErrUnauthorized.
type HTTPError struct {
	Method string
	URI    string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d %s: %s", e.Method, e.URI, e.Status,
		http.StatusText(e.Status), e.Detail())
}

// Detail returns the APIC error text when the body carries one, otherwise
// the raw body.
func (e *HTTPError) Detail() string {
	if text := gjson.Get(e.Body, "imdata.0.error.attributes.text").Str; text != "" {
		return text
	}
	return e.Body
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden)
}

// FabricError ties a stage failure to the controller, policy or group it
// happened on.
type FabricError struct {
	Kind     error
	Resource string
	Err      error
}

func (e *FabricError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Resource)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Resource, e.Err)
}

func (e *FabricError) Is(target error) bool {
	return target == e.Kind
}

func (e *FabricError) Unwrap() error {
	return e.Err
}

func authError(address string, err error) error {
	return &FabricError{Kind: ErrAuth, Resource: address, Err: err}
}

func cancelledError(address string, err error) error {
	return &FabricError{Kind: ErrCancelled, Resource: address, Err: err}
}

func readError(resource string, err error) error {
	return &FabricError{Kind: ErrRead, Resource: resource, Err: err}
}

func writeError(resource string, err error) error {
	return &FabricError{Kind: ErrWrite, Resource: resource, Err: err}
}

func selectionError(resource string) error {
	return &FabricError{Kind: ErrSelection, Resource: resource}
}

func associationError(group string, err error) error {
	return &FabricError{Kind: ErrAssociation, Resource: group, Err: err}
}

// httpStatus returns the HTTP status carried by err, or 0.
func httpStatus(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}
