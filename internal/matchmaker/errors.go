package matchmaker

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorStatus string

const (
	ErrorStatusUnknown         ErrorStatus = "unknown"
	ErrorStatusUnauthenticated ErrorStatus = "unauthenticated"
	ErrorStatusInvalidRequest  ErrorStatus = "invalid_request"
	ErrorStatusNotFound        ErrorStatus = "not_found"
	ErrorStatusForbidden       ErrorStatus = "forbidden"
	ErrorStatusConflict        ErrorStatus = "conflict"
	ErrorStatusUpstream        ErrorStatus = "upstream"
)

var (
	ErrRoomNotFound   = errors.New("房间不存在或已结束")
	ErrAlreadyInPool  = errors.New("您已在匹配中")
	ErrAlreadyInRoom  = errors.New("您正在通话中")
	ErrNotParticipant = errors.New("无权加入该房间")
	ErrSelfPairing    = errors.New("cannot pair a user with themselves")
)

// Error 带状态的业务错误，handler 根据 Status 决定 HTTP 状态码
type Error struct {
	Status  ErrorStatus
	Message string
	err     error
}

func NewError(status ErrorStatus, message string, err error) *Error {
	return &Error{Status: status, Message: message, err: err}
}

func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("voice match error(status: %s): %s", e.Status, e.Message)
	}
	return fmt.Errorf("voice match error(status: %s): %s: %w", e.Status, e.Message, e.err).Error()
}

func (e *Error) Unwrap() error { return e.err }

// HTTPStatus 错误状态到 HTTP 状态码
func (e *Error) HTTPStatus() int {
	switch e.Status {
	case ErrorStatusUnauthenticated:
		return http.StatusUnauthorized
	case ErrorStatusInvalidRequest:
		return http.StatusBadRequest
	case ErrorStatusNotFound:
		return http.StatusNotFound
	case ErrorStatusForbidden:
		return http.StatusForbidden
	case ErrorStatusConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func ErrorHasStatus(target error, status ErrorStatus) bool {
	var e *Error
	if errors.As(target, &e) {
		return e.Status == status
	}
	return false
}

// AsError 把任意错误转成 *Error，未知错误统一为 unknown
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(ErrorStatusUnknown, "服务器内部错误", err)
}
