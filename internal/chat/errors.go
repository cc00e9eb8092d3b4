package chat

import (
	"errors"
	"fmt"

	"github.com/convene-hq/backend/pkg/matrix"
)

// Kind classifies a chat-core failure so callers can branch on it instead of
// matching error strings.
type Kind string

const (
	// KindNotFound: the entity or room does not exist. Not retryable.
	KindNotFound Kind = "not_found"
	// KindForbidden: a role-hierarchy rule denied the operation. Not
	// retryable, user-facing.
	KindForbidden Kind = "forbidden"
	// KindTransient: the chat network was unreachable or timed out.
	// Retryable with backoff.
	KindTransient Kind = "transient"
	// KindPermissionUnavailable: the bot lacks room privileges and the
	// self-heal attempt did not recover them. Needs operator attention;
	// surfaced distinctly from KindTransient so the diagnostic can be run.
	KindPermissionUnavailable Kind = "permission_unavailable"
)

// Error is the chat core's boundary error. Every failure leaving the
// lifecycle manager, permission service, or synchronizer is one of these.
type Error struct {
	Kind Kind
	Op   string // step that failed: "ensure", "diagnose", "invite", ...
	Rule string // for KindForbidden, the hierarchy rule that denied
	Msg  string
	Err  error // underlying cause, if any
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Op, e.Msg)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or "" if err carries none.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind reports whether err is a chat error of the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// RuleOf returns the hierarchy rule attached to a Forbidden error, or "".
func RuleOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Rule
	}
	return ""
}

func notFoundf(op, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func forbidden(op, rule, msg string) *Error {
	return &Error{Kind: KindForbidden, Op: op, Rule: rule, Msg: msg}
}

func transient(op string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindTransient, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

func permissionUnavailable(op, format string, args ...any) *Error {
	return &Error{Kind: KindPermissionUnavailable, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// classify maps an error from the chat network into the failure taxonomy,
// so no unclassified network error crosses the core's boundary.
func classify(op string, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	if me := matrix.AsError(err); me != nil {
		switch {
		case me.Code == matrix.ErrCodeNotFound:
			return &Error{Kind: KindNotFound, Op: op, Msg: "room not found on chat network", Err: err}
		case me.Code == matrix.ErrCodeForbidden || me.Code == matrix.ErrCodeUnknownToken:
			// The bot's own authority was rejected.
			return &Error{Kind: KindPermissionUnavailable, Op: op, Msg: "chat network rejected bot authority", Err: err}
		case matrix.IsRetryable(err):
			return &Error{Kind: KindTransient, Op: op, Msg: "chat network error", Err: err}
		default:
			return &Error{Kind: KindTransient, Op: op, Msg: "unexpected chat network response", Err: err}
		}
	}
	// Timeouts, connection failures, cancelled contexts.
	return &Error{Kind: KindTransient, Op: op, Msg: "chat network unreachable", Err: err}
}
