package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按类别分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown       ErrorCode = 1000
	ErrInvalidParam  ErrorCode = 1001
	ErrTimeout       ErrorCode = 1005
	ErrCanceled      ErrorCode = 1006
	ErrNotImplemented ErrorCode = 1007

	// 输入校验错误 (2000-2999)
	ErrValidation      ErrorCode = 2000
	ErrInvalidUsername ErrorCode = 2001
	ErrInvalidRoomCode ErrorCode = 2002
	ErrInvalidSettings ErrorCode = 2003
	ErrInvalidWord     ErrorCode = 2004
	ErrInvalidGuess    ErrorCode = 2005
	ErrUsernameTaken   ErrorCode = 2006
	ErrMessageFormat   ErrorCode = 2007

	// 权限错误 (3000-3999)
	ErrAuthorization ErrorCode = 3000
	ErrNotYourTurn   ErrorCode = 3001
	ErrNotHost       ErrorCode = 3002
	ErrArtistGuess   ErrorCode = 3003

	// 状态错误 (4000-4399)
	ErrState             ErrorCode = 4000
	ErrGameInProgress    ErrorCode = 4001
	ErrGameNotStarted    ErrorCode = 4002
	ErrNotEnoughPlayers  ErrorCode = 4003
	ErrRoomFull          ErrorCode = 4004
	ErrInvalidTransition ErrorCode = 4005
	ErrNotInRoom         ErrorCode = 4006

	// 资源不存在 (4400-4999)
	ErrNotFound        ErrorCode = 4400
	ErrRoomNotFound    ErrorCode = 4401
	ErrSessionNotFound ErrorCode = 4402
	ErrPlayerNotFound  ErrorCode = 4403
	ErrMatchNotFound   ErrorCode = 4404

	// 数据库错误 (5000-5999)
	ErrDatabaseConnect ErrorCode = 5000
	ErrDatabaseQuery   ErrorCode = 5001
	ErrDatabaseInsert  ErrorCode = 5002
	ErrArchiveDisabled ErrorCode = 5003

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002

	// 令牌错误 (7000-7999)
	ErrTokenExpired      ErrorCode = 7002
	ErrTokenInvalid      ErrorCode = 7003
	ErrRateLimitExceeded ErrorCode = 7004

	// 内部错误 (9000-9999)
	ErrInternal     ErrorCode = 9000
	ErrPanic        ErrorCode = 9001
	ErrSessionStore ErrorCode = 9002
)

// Category 错误类别，面向客户端的五类错误
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryAuthorization Category = "authorization"
	CategoryState         Category = "state"
	CategoryNotFound      Category = "not_found"
	CategoryInternal      Category = "internal"
)

// 错误码消息映射，消息会直接下发给客户端，必须简短且不含谜底
var errorMessages = map[ErrorCode]string{
	ErrUnknown:        "unknown error",
	ErrInvalidParam:   "invalid parameter",
	ErrTimeout:        "operation timed out",
	ErrCanceled:       "operation canceled",
	ErrNotImplemented: "not implemented",

	ErrValidation:      "invalid input",
	ErrInvalidUsername: "Username must be 3-20 characters",
	ErrInvalidRoomCode: "Invalid room code",
	ErrInvalidSettings: "Invalid settings",
	ErrInvalidWord:     "Invalid word selected",
	ErrInvalidGuess:    "Invalid guess format",
	ErrUsernameTaken:   "Username already taken in this room",
	ErrMessageFormat:   "Invalid message format",

	ErrAuthorization: "not allowed",
	ErrNotYourTurn:   "Not your turn to draw",
	ErrNotHost:       "Only the host can change settings",
	ErrArtistGuess:   "You are drawing! You cannot guess.",

	ErrState:             "action not allowed right now",
	ErrGameInProgress:    "Game already in progress",
	ErrGameNotStarted:    "Game not in progress",
	ErrNotEnoughPlayers:  "Need at least 2 players to start",
	ErrRoomFull:          "Room is full",
	ErrInvalidTransition: "Invalid phase transition",
	ErrNotInRoom:         "You are not in a room",

	ErrNotFound:        "not found",
	ErrRoomNotFound:    "Room not found",
	ErrSessionNotFound: "Session not found or expired",
	ErrPlayerNotFound:  "Player not found in room",
	ErrMatchNotFound:   "Match not found",

	ErrDatabaseConnect: "database unavailable",
	ErrDatabaseQuery:   "database query failed",
	ErrDatabaseInsert:  "database insert failed",
	ErrArchiveDisabled: "match archive disabled",

	ErrConfigLoad:     "config load failed",
	ErrConfigParse:    "config parse failed",
	ErrConfigValidate: "config validation failed",

	ErrTokenExpired:      "Session token expired",
	ErrTokenInvalid:      "Invalid session token",
	ErrRateLimitExceeded: "rate limit exceeded",

	ErrInternal:     "An internal error occurred",
	ErrPanic:        "An internal error occurred",
	ErrSessionStore: "session store unavailable",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithMessage 替换下发给客户端的消息
func (e *AppError) WithMessage(message string) *AppError {
	e.Message = message
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// Category 返回错误所属类别
func (e *AppError) Category() Category {
	return CategoryOf(e.Code)
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误，已经是AppError时保留原始错误码
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr = New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	return ErrUnknown
}

// CategoryOf 按错误码区间映射到五类错误
func CategoryOf(code ErrorCode) Category {
	switch {
	case code == ErrInvalidParam, code >= 2000 && code <= 2999:
		return CategoryValidation
	case code >= 3000 && code <= 3999, code == ErrTokenExpired, code == ErrTokenInvalid:
		return CategoryAuthorization
	case code >= 4000 && code <= 4399, code == ErrRateLimitExceeded:
		return CategoryState
	case code >= 4400 && code <= 4999:
		return CategoryNotFound
	default:
		return CategoryInternal
	}
}

// GetCategory 获取任意错误的类别，非AppError视为内部错误
func GetCategory(err error) Category {
	return CategoryOf(GetCode(err))
}

// PublicMessage 返回可以下发给客户端的消息，内部错误不暴露细节
func PublicMessage(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return errorMessages[ErrInternal]
	}
	if appErr.Category() == CategoryInternal {
		return errorMessages[ErrInternal]
	}
	return appErr.Message
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()

		// 跳过runtime和本包的调用
		if strings.Contains(frame.Function, "runtime.") ||
			strings.Contains(frame.Function, "github.com/wfunc/draw-guess/internal/errors") {
			if !more {
				break
			}
			continue
		}

		e.Stack = append(e.Stack, StackFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})

		if !more || len(e.Stack) >= 10 {
			break
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrArchiveDisabled, e.Code == ErrDatabaseConnect:
		return 503 // Service Unavailable
	case e.Code == ErrTokenExpired, e.Code == ErrTokenInvalid:
		return 401 // Unauthorized
	case e.Code == ErrRateLimitExceeded:
		return 429 // Too Many Requests
	}

	switch e.Category() {
	case CategoryValidation:
		return 400
	case CategoryAuthorization:
		return 403
	case CategoryState:
		return 409
	case CategoryNotFound:
		return 404
	default:
		return 500
	}
}

// IsRetryable 判断错误是否可重试（玩家操作不自动重试，仅基础设施错误）
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case ErrTimeout, ErrDatabaseConnect, ErrSessionStore:
		return true
	default:
		return false
	}
}

// IsCritical 判断是否为严重错误
func IsCritical(err error) bool {
	switch GetCode(err) {
	case ErrDatabaseConnect, ErrConfigLoad, ErrPanic:
		return true
	default:
		return false
	}
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	Category  Category  `json:"category,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	resp := &ErrorResponse{
		Success:   false,
		Error:     err,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
	if err != nil {
		resp.Category = err.Category()
	}
	return resp
}
