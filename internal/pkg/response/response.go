// internal/pkg/response/response.go
package response

import (
	"github.com/gin-gonic/gin"
)

// Envelope is the uniform JSON body every endpoint answers with.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success writes a successful envelope.
func Success(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error aborts the handler chain and writes an error envelope. The wrapped
// error text is surfaced in the body; an optional data payload carries
// structured detail such as the roles a request was missing.
func Error(c *gin.Context, code int, message string, err error, data ...interface{}) {
	c.Abort()

	body := Envelope{
		Success: false,
		Message: message,
	}
	if err != nil {
		body.Error = err.Error()
	}
	if len(data) > 0 {
		body.Data = data[0]
	}

	c.JSON(code, body)
}
