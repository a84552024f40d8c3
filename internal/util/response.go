package util

import (
	"net/http"

	"github.com/rammfall-education/api-fine/internal/apperr"

	"github.com/gin-gonic/gin"
)

// Response is the data payload of a successful reply.
type Response map[string]interface{}

// Business codes carried next to the HTTP status.
const (
	CodeOK                = 0
	CodeInvalidParam      = 40001
	CodeInsufficientFunds = 40002
	CodeInvalidTransition = 40003
	CodeAuth              = 40101
	CodeUnchanged         = 40201
	CodeForbidden         = 40301
	CodeNotFound          = 40401
	CodeAlreadyPaid       = 40901
	CodeConflict          = 40902
	CodeServerErr         = 50001
)

type errorMapping struct {
	status int
	code   int
}

var kindMappings = map[apperr.Kind]errorMapping{
	apperr.KindInvalidInput:      {http.StatusBadRequest, CodeInvalidParam},
	apperr.KindInsufficientFunds: {http.StatusBadRequest, CodeInsufficientFunds},
	apperr.KindInvalidTransition: {http.StatusBadRequest, CodeInvalidTransition},
	apperr.KindUnauthorized:      {http.StatusUnauthorized, CodeAuth},
	apperr.KindUnchanged:         {http.StatusPaymentRequired, CodeUnchanged},
	apperr.KindForbidden:         {http.StatusForbidden, CodeForbidden},
	apperr.KindNotFound:          {http.StatusNotFound, CodeNotFound},
	apperr.KindAlreadyPaid:       {http.StatusConflict, CodeAlreadyPaid},
	apperr.KindConflict:          {http.StatusConflict, CodeConflict},
	apperr.KindInternal:          {http.StatusInternalServerError, CodeServerErr},
}

// StatusOf returns the HTTP status and business code for err.
func StatusOf(err error) (int, int) {
	m, ok := kindMappings[apperr.KindOf(err)]
	if !ok {
		return http.StatusInternalServerError, CodeServerErr
	}
	return m.status, m.code
}

// Success writes a 200 reply.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code": CodeOK,
		"data": data,
	})
}

// Created writes a 201 reply.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{
		"code": CodeOK,
		"data": data,
	})
}

// Error writes an error reply with an explicit status and code.
func Error(c *gin.Context, httpStatus int, code int, msg string) {
	c.AbortWithStatusJSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
	})
}

// Fail translates err into an error reply. Internal details never reach the
// client; the error itself is attached to the context for the request logger.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)

	status, code := StatusOf(err)
	body := gin.H{
		"code": code,
		"kind": apperr.KindOf(err),
	}
	if ae, ok := apperr.As(err); ok && ae.Kind != apperr.KindInternal {
		body["message"] = ae.Message
		if ae.Field != "" {
			body["field"] = ae.Field
		}
	} else {
		body["kind"] = apperr.KindInternal
		body["message"] = "internal server error"
	}
	c.AbortWithStatusJSON(status, body)
}

// BadRequest replies 400 for a request that could not be bound.
func BadRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"code":    CodeInvalidParam,
		"kind":    apperr.KindInvalidInput,
		"message": "invalid parameters",
	})
}
