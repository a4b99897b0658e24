package server

import (
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"

	rxerrors "github.com/wudi/rxverify/errors"
	"github.com/wudi/rxverify/observability"
)

const msgUnexpected = "An unexpected error occurred while processing the prescription."

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type successBody struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
	Meta   any    `json:"meta,omitempty"`
}

func ok(c *gin.Context, status int, data, meta any) {
	c.JSON(status, successBody{Status: "success", Data: data, Meta: meta})
}

func statusOf(category rxerrors.Category) int {
	switch category {
	case rxerrors.CategoryInvalidInput:
		return http.StatusBadRequest
	case rxerrors.CategoryDependencyMissing:
		return http.StatusServiceUnavailable
	case rxerrors.CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {error, details}. Unclassified errors are reported as
// unexpected with the cause in details.
func (s *Server) fail(c *gin.Context, err error) {
	category := rxerrors.CategoryOf(err)
	status := statusOf(category)
	body := errorBody{Error: err.Error(), Details: rxerrors.HintOf(err)}
	if category == "" {
		body = errorBody{Error: msgUnexpected, Details: err.Error()}
	}
	if status >= http.StatusInternalServerError && category != rxerrors.CategoryDependencyMissing {
		s.logger.Error("request error",
			observability.String("path", c.FullPath()),
			observability.String("code", rxerrors.CodeOf(err)),
			observability.Error("error", err))
		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
	}
	c.AbortWithStatusJSON(status, body)
}

func (s *Server) reject(c *gin.Context, status int, message, details string) {
	c.AbortWithStatusJSON(status, errorBody{Error: message, Details: details})
}
