package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// DomainError carries the HTTP status and a stable code alongside a message
// safe to show to clients.
type DomainError struct {
	Status  int
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewDomainError(status int, code, message string) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message}
}

func ValidationError(message string) *DomainError {
	return NewDomainError(http.StatusBadRequest, "VALIDATION_ERROR", message)
}

func NotFound(message string) *DomainError {
	return NewDomainError(http.StatusNotFound, "NOT_FOUND", message)
}

func Unauthorized() *DomainError {
	return NewDomainError(http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
}

func Forbidden(message string) *DomainError {
	return NewDomainError(http.StatusForbidden, "FORBIDDEN", message)
}

// RespondError writes err as {"error": ..., "code": ...}. Anything that is not
// a DomainError becomes a 500 without leaking the underlying message.
func RespondError(c *gin.Context, err error) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		c.JSON(domainErr.Status, gin.H{"error": domainErr.Message, "code": domainErr.Code})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "SERVER_ERROR"})
}
