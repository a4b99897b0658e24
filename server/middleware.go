package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wudi/rxverify/observability"
)

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, PATCH, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []observability.Field{
			observability.String("method", c.Request.Method),
			observability.String("path", c.FullPath()),
			observability.Int("status", c.Writer.Status()),
			observability.Duration("elapsed", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Error("request failed", fields...)
			return
		}
		s.logger.Info("request served", fields...)
	}
}

func (s *Server) recovered(c *gin.Context, recovered any) {
	s.logger.Error("handler panicked",
		observability.String("path", c.FullPath()),
		observability.String("panic", fmt.Sprint(recovered)))
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{
		Error:   msgUnexpected,
		Details: fmt.Sprint(recovered),
	})
}
