package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Concrete errors wrap one of these so callers can classify
// failures with errors.Is.
var (
	// ErrTransport indicates a network failure or non-success status from a
	// backing service. Timeouts are transport failures.
	ErrTransport = errors.New("transport failure")

	// ErrEmbeddingBackend indicates the tokenizer or inference backend failed.
	ErrEmbeddingBackend = errors.New("embedding backend failure")

	// ErrCollectionResolution indicates listing or creating a collection
	// returned an error payload or a malformed response.
	ErrCollectionResolution = errors.New("collection resolution failed")

	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")

	// ErrBackendProtocol indicates a backend response lacked expected fields.
	ErrBackendProtocol = errors.New("backend protocol violation")

	// ErrDimensionMismatch indicates embeddings of different dimensions were
	// mixed in one collection.
	ErrDimensionMismatch = fmt.Errorf("%w: embedding dimension mismatch", ErrValidation)
)

// BackendError describes a failed call to an external service.
type BackendError struct {
	Kind    error
	Backend string
	Op      string
	Status  int
	Err     error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause.
func (e *BackendError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// TransportError wraps err as an ErrTransport failure of backend.op.
func TransportError(backend, op string, status int, err error) error {
	return &BackendError{Kind: ErrTransport, Backend: backend, Op: op, Status: status, Err: err}
}

// ProtocolError wraps err as an ErrBackendProtocol failure of backend.op.
func ProtocolError(backend, op string, err error) error {
	return &BackendError{Kind: ErrBackendProtocol, Backend: backend, Op: op, Err: err}
}

// EmbeddingBackendError marks err as an embedding backend failure. The
// original classification (transport, protocol) is preserved.
func EmbeddingBackendError(backend, op string, err error) error {
	return &BackendError{Kind: ErrEmbeddingBackend, Backend: backend, Op: op, Err: err}
}

// CollectionResolutionError carries the raw backend response for diagnostics.
type CollectionResolutionError struct {
	Name string
	Raw  string
	Err  error
}

func (e *CollectionResolutionError) Error() string {
	msg := fmt.Sprintf("resolve collection %q", e.Name)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Raw != "" {
		msg += "; response: " + e.Raw
	}
	return msg
}

func (e *CollectionResolutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCollectionResolution}
	}
	return []error{ErrCollectionResolution, e.Err}
}

// Validationf returns an ErrValidation error with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// KindOf names the error kind of err for logs and metrics.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrCollectionResolution):
		return "collection_resolution"
	case errors.Is(err, ErrEmbeddingBackend):
		return "embedding_backend"
	case errors.Is(err, ErrBackendProtocol):
		return "protocol"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "internal"
	}
}
