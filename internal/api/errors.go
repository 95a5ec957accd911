package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/zulandar/momotalk/internal/chat"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps an error class to an HTTP status.
func statusFor(class chat.Class) int {
	switch class {
	case chat.ClassInvalid:
		return http.StatusBadRequest
	case chat.ClassNotFound:
		return http.StatusNotFound
	case chat.ClassCompletionAuth, chat.ClassCompletionStatus, chat.ClassCompletionResponse:
		return http.StatusBadGateway
	case chat.ClassCompletionTransport:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with the status its class maps to.
func writeError(c *gin.Context, err error) {
	class := chat.Classify(err)
	status := statusFor(class)
	if status >= 500 {
		log.Error().Err(err).Str("path", c.FullPath()).Str("code", string(class)).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, errorBody{Error: chat.Describe(err), Code: string(class)})
}

// badRequest renders a request-shape error that never reached the store.
func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: msg, Code: string(chat.ClassInvalid)})
}
