package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContextRequestID is the gin context key the request id middleware stores under.
const ContextRequestID = "request_id"

// Body is the standard API response envelope.
type Body struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func write(c *gin.Context, status int, body Body) {
	body.RequestID = c.GetString(ContextRequestID)
	c.JSON(status, body)
}

func fail(c *gin.Context, status int, code, err string) {
	write(c, status, Body{Success: false, Error: err, Code: code})
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	fail(c, http.StatusBadRequest, "BAD_REQUEST", err)
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	fail(c, http.StatusUnauthorized, "UNAUTHORIZED", err)
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	fail(c, http.StatusForbidden, "FORBIDDEN", err)
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	fail(c, http.StatusNotFound, "NOT_FOUND", err)
}

// Conflict sends 409.
func Conflict(c *gin.Context, err string) {
	fail(c, http.StatusConflict, "CONFLICT", err)
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, err string) {
	fail(c, http.StatusServiceUnavailable, "UNAVAILABLE", err)
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	fail(c, http.StatusInternalServerError, "INTERNAL", err)
}
