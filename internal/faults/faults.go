package faults

import (
	"context"
	"errors"
)

// Kind classifies an error into the categories surfaced to users and operators.
type Kind string

const (
	KindRemoteUnavailable Kind = "remote_unavailable"
	KindNotFound          Kind = "not_found"
	KindPermissionDenied  Kind = "permission_denied"
	KindPersistence       Kind = "persistence_failure"
	KindUnexpected        Kind = "unexpected"
)

var (
	// ErrRemoteUnavailable marks upstream outages and maintenance windows. Retry on the next tick.
	ErrRemoteUnavailable = errors.New("remote service unavailable")
	// ErrNotFound marks a missing handle, role, channel or member.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied marks a mutation refused by the chat platform.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrPersistence marks a failed write to the local store.
	ErrPersistence = errors.New("persistence failure")
)

// Classify maps err onto a Kind. Unrecognised errors are KindUnexpected.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRemoteUnavailable), errors.Is(err, context.DeadlineExceeded):
		return KindRemoteUnavailable
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	default:
		return KindUnexpected
	}
}

// UserMessage renders err as the ephemeral text shown to the invoking user.
func UserMessage(err error) string {
	switch Classify(err) {
	case "":
		return ""
	case KindRemoteUnavailable:
		return "⚠️ The RSI API is currently unavailable. Please try again later."
	case KindNotFound:
		return "❌ " + err.Error()
	case KindPermissionDenied:
		return "❌ I don't have permission to do that. Please check my role permissions."
	case KindPersistence:
		return "❌ Failed to save the changes. Nothing was modified, please try again."
	default:
		return "❌ An error occurred while processing the command."
	}
}
