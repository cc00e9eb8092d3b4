package matrix

import (
	"errors"
	"fmt"
	"strings"
)

// Standard error codes returned by the homeserver's client-server API.
const (
	ErrCodeNotFound      = "M_NOT_FOUND"
	ErrCodeForbidden     = "M_FORBIDDEN"
	ErrCodeRoomInUse     = "M_ROOM_IN_USE"
	ErrCodeLimitExceeded = "M_LIMIT_EXCEEDED"
	ErrCodeUnknownToken  = "M_UNKNOWN_TOKEN"
	ErrCodeUnknown       = "M_UNKNOWN"
)

// Error is the structured error body of a failed homeserver request.
type Error struct {
	StatusCode int
	Code       string `json:"errcode"`
	Message    string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("matrix: %s (%s, HTTP %d)", e.Message, e.Code, e.StatusCode)
}

// AsError unwraps err into a homeserver *Error, or nil if err is not one.
func AsError(err error) *Error {
	var me *Error
	if errors.As(err, &me) {
		return me
	}
	return nil
}

// IsErrCode reports whether err is a homeserver error with the given errcode.
func IsErrCode(err error, code string) bool {
	me := AsError(err)
	return me != nil && me.Code == code
}

// IsNotFound reports whether err means the room, alias, or state does not exist.
func IsNotFound(err error) bool {
	return IsErrCode(err, ErrCodeNotFound)
}

// IsRoomInUse reports whether err means the requested room alias is already
// taken. Treated as success by idempotent room creation.
func IsRoomInUse(err error) bool {
	return IsErrCode(err, ErrCodeRoomInUse)
}

// IsAlreadyMember reports whether err is the rejection the homeserver sends
// when inviting a user who is already joined or already invited. There is no
// dedicated errcode for this case, so the M_FORBIDDEN message is inspected.
func IsAlreadyMember(err error) bool {
	me := AsError(err)
	if me == nil || me.Code != ErrCodeForbidden {
		return false
	}
	msg := strings.ToLower(me.Message)
	return strings.Contains(msg, "already in the room") || strings.Contains(msg, "already invited") || strings.Contains(msg, "already joined")
}

// IsNotInRoom reports whether err is the rejection for acting on a user who
// is not a member of the room (e.g. kicking a non-member). Like
// IsAlreadyMember, the message is inspected because homeservers report this
// as either M_NOT_FOUND or a descriptive M_FORBIDDEN.
func IsNotInRoom(err error) bool {
	me := AsError(err)
	if me == nil {
		return false
	}
	if me.Code == ErrCodeNotFound {
		return true
	}
	if me.Code != ErrCodeForbidden {
		return false
	}
	msg := strings.ToLower(me.Message)
	return strings.Contains(msg, "not in the room") || strings.Contains(msg, "not a member")
}

// IsRetryable reports whether err is worth retrying: rate limits, server
// errors, and anything that never produced a structured homeserver error
// (timeouts, connection resets).
func IsRetryable(err error) bool {
	me := AsError(err)
	if me == nil {
		return err != nil
	}
	return me.Code == ErrCodeLimitExceeded || me.StatusCode >= 500
}
