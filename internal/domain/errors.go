package domain

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies why a fetch failed
type FetchErrorKind string

const (
	KindResolutionFailed FetchErrorKind = "resolution_failed" // No downloadable stream (private, region-blocked, unsupported)
	KindNetworkFailed    FetchErrorKind = "network_failed"    // Transport failure during transfer
	KindArtifactMissing  FetchErrorKind = "artifact_missing"  // Transfer succeeded but no file on disk
	KindCancelled        FetchErrorKind = "cancelled"
	KindInvalidRequest   FetchErrorKind = "invalid_request"
)

// Sentinels for errors.Is
var (
	ErrResolutionFailed = &FetchError{Kind: KindResolutionFailed}
	ErrNetworkFailed    = &FetchError{Kind: KindNetworkFailed}
	ErrArtifactMissing  = &FetchError{Kind: KindArtifactMissing}
	ErrCancelled        = &FetchError{Kind: KindCancelled}
	ErrInvalidRequest   = &FetchError{Kind: KindInvalidRequest}
)

// FetchError carries the failure kind and the underlying diagnostic text
type FetchError struct {
	Kind    FetchErrorKind
	Message string
	Err     error
}

// NewFetchError creates a classified fetch error
func NewFetchError(kind FetchErrorKind, message string, err error) *FetchError {
	return &FetchError{Kind: kind, Message: message, Err: err}
}

func (e *FetchError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches any FetchError of the same kind
func (e *FetchError) Is(target error) bool {
	t, ok := target.(*FetchError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the kind of a fetch error, or "" for unclassified errors
func KindOf(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// ErrFetchNotFound is returned by repositories when no job matches
var ErrFetchNotFound = errors.New("fetch not found")

// ErrArtifactNotReady means the job has not completed yet
var ErrArtifactNotReady = errors.New("artifact not ready")

// ErrArtifactGone means a completed job's artifact was replaced by a newer fetch
var ErrArtifactGone = errors.New("artifact no longer available")

// ErrInvalidTransition is returned when a job cannot move to the requested state
var ErrInvalidTransition = errors.New("invalid state transition")
