package handler

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/decet2025-sketch/cert-api/pkg/errors"
)

// ErrorBody is the machine-readable error half of the envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the uniform response shape: {ok, status, data|error}.
type Envelope struct {
	OK     bool        `json:"ok"`
	Status int         `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

func RespondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, &Envelope{OK: true, Status: status, Data: data})
}

func RespondError(c *gin.Context, err error) {
	appErr := apperrors.AsAppError(err)
	c.JSON(appErr.Status, &Envelope{
		OK:     false,
		Status: appErr.Status,
		Error:  &ErrorBody{Code: appErr.Code, Message: appErr.Message},
	})
}
