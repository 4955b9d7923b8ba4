package service

import (
	"context"
	"errors"

	"collaborative-board/internal/domain"
)

// 实时协作错误分类
var (
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrAccessDenied         = errors.New("access denied to board")
	ErrNotInRoom            = errors.New("not in board room")
	ErrUpstreamUnavailable  = errors.New("upstream service unavailable")
	ErrMalformedEvent       = errors.New("malformed event")
	ErrBoardNotFound        = errors.New("board not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: username or email already exists")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInternalServer       = errors.New("internal server error")
)

// 发送给客户端的稳定错误码
const (
	CodeUnauthenticated     = "unauthenticated"
	CodeAccessDenied        = "access_denied"
	CodeNotInRoom           = "not_in_room"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeMalformedEvent      = "malformed_event"
	CodeBoardNotFound       = "board_not_found"
	CodeInternal            = "internal"
)

// ErrorCode 将错误映射为 error 事件中的错误码
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrAuthenticationFailed):
		return CodeUnauthenticated
	case errors.Is(err, ErrAccessDenied):
		return CodeAccessDenied
	case errors.Is(err, ErrNotInRoom):
		return CodeNotInRoom
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, context.DeadlineExceeded):
		return CodeUpstreamUnavailable
	case errors.Is(err, ErrMalformedEvent), errors.Is(err, domain.ErrInvalidPayload), errors.Is(err, ErrInvalidInput):
		return CodeMalformedEvent
	case errors.Is(err, ErrBoardNotFound):
		return CodeBoardNotFound
	default:
		return CodeInternal
	}
}

// PublicMessage 返回可以安全展示给客户端的错误描述
func PublicMessage(err error) string {
	switch ErrorCode(err) {
	case CodeUnauthenticated:
		return "Authentication required"
	case CodeAccessDenied:
		return "Access denied to board"
	case CodeNotInRoom:
		return "Not in board room"
	case CodeUpstreamUnavailable:
		return "Service temporarily unavailable, please retry"
	case CodeMalformedEvent:
		return err.Error()
	case CodeBoardNotFound:
		return "Board not found"
	default:
		return "Internal server error"
	}
}
