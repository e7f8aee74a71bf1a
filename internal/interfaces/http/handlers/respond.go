package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

// statusOf 错误码到 HTTP 状态码的映射
func statusOf(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.CodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.CodeInvalidSender:
		return http.StatusForbidden
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeRoomClosed, apperrors.CodeSyncInProgress, apperrors.CodeAlreadyExists:
		return http.StatusConflict
	case apperrors.CodeRetrievalTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError 按统一结构返回错误
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewInternalError("internal error")
	}

	c.JSON(statusOf(appErr.Code), gin.H{
		"error": gin.H{
			"code":    string(appErr.Code),
			"message": appErr.Message,
		},
	})
}
