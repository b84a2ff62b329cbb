package api

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/draw-guess/internal/errors"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Details string           `json:"details,omitempty"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PageResponse 分页响应
type PageResponse struct {
	Items    interface{} `json:"items"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Total    int64       `json:"total"`
}

// respondError 按错误类别写出状态码，内部错误只返回通用消息
func respondError(c *gin.Context, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.Wrap(err, errors.ErrInternal)
	}
	resp := ErrorResponse{Code: appErr.Code, Message: errors.PublicMessage(appErr)}
	switch {
	case appErr.HTTPStatus() == http.StatusServiceUnavailable:
		// 依赖不可用可以如实告知
		resp.Message = appErr.Message
	case appErr.Category() == errors.CategoryInternal:
		resp.Code = errors.ErrInternal
	}
	c.JSON(appErr.HTTPStatus(), resp)
}
