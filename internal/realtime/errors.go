package realtime

import (
	"errors"
	"fmt"

	"qdamono/server/internal/projects"
	"qdamono/server/internal/store"
)

// Code classifies a failed event.
type Code string

const (
	CodeSessionState      Code = "session_state"
	CodeInvalidEvent      Code = "invalid_event"
	CodeDocumentNotFound  Code = "document_not_found"
	CodeDuplicateDocument Code = "duplicate_document"
	CodeAuthorization     Code = "authorization"
	CodeInternal          Code = "internal"
)

// Error is the failure of a single event. It is echoed to the originating
// connection as an "error" frame.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func eventError(code Code, message string, details map[string]any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

func sessionStateError(message string) *Error {
	return eventError(CodeSessionState, message, nil)
}

func invalidEvent(message string, details map[string]any) *Error {
	return eventError(CodeInvalidEvent, message, details)
}

func documentNotFound(kind, id string) *Error {
	return eventError(CodeDocumentNotFound, fmt.Sprintf("%s %s not found", kind, id), map[string]any{"kind": kind, "id": id})
}

// classify maps any handler error onto the event error taxonomy.
func classify(err error) *Error {
	var eventErr *Error
	switch {
	case errors.As(err, &eventErr):
		return eventErr
	case errors.Is(err, store.ErrNotFound):
		return eventError(CodeDocumentNotFound, err.Error(), nil)
	case errors.Is(err, store.ErrDuplicate):
		return eventError(CodeDuplicateDocument, err.Error(), nil)
	case errors.Is(err, projects.ErrUnauthorized):
		return eventError(CodeAuthorization, err.Error(), nil)
	default:
		return eventError(CodeInternal, "internal error", nil)
	}
}
