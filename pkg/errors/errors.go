package errors

import (
	"errors"
	"fmt"
)

// ErrorCode 错误码类型
type ErrorCode string

const (
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeAlreadyExists    ErrorCode = "ALREADY_EXISTS"
	CodeUnauthenticated  ErrorCode = "UNAUTHENTICATED"
	CodeInvalidSender    ErrorCode = "INVALID_SENDER"
	CodeRoomClosed       ErrorCode = "ROOM_CLOSED"
	CodeRetrievalTimeout ErrorCode = "RETRIEVAL_TIMEOUT"
	CodeSyncInProgress   ErrorCode = "SYNC_IN_PROGRESS"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// New 创建指定错误码的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap 创建带原因的应用错误
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Err: cause}
}

// NewInvalidInputError 创建无效输入错误
func NewInvalidInputError(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string) *AppError {
	return New(CodeNotFound, message)
}

// NewUnauthenticatedError 创建未认证错误
func NewUnauthenticatedError(message string) *AppError {
	return New(CodeUnauthenticated, message)
}

// NewInternalError 创建内部错误
func NewInternalError(message string) *AppError {
	return New(CodeInternal, message)
}

// NewInternalErrorWithCause 创建带原因的内部错误
func NewInternalErrorWithCause(message string, cause error) *AppError {
	return Wrap(CodeInternal, message, cause)
}

// CodeOf 提取错误码, 非 AppError 返回 CodeInternal
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is 判断错误是否携带指定错误码
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsNotFound 判断是否为未找到错误
func IsNotFound(err error) bool {
	return Is(err, CodeNotFound)
}

// IsInvalidInput 判断是否为无效输入错误
func IsInvalidInput(err error) bool {
	return Is(err, CodeInvalidInput)
}
