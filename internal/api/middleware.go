package api

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"charging-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	authUserIDKey     = "authUserID"
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replay"
)

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}

// authenticate resolves an optional bearer token to a user id. A token that
// is present must be valid; with AuthRequired a token is mandatory.
func (h *Handler) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if h.opts.AuthRequired {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
				return
			}
			c.Next()
			return
		}

		if h.opts.Tokens == nil {
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "malformed authorization header"})
			return
		}

		userID, err := h.opts.Tokens.ResolveUserID(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(authUserIDKey, userID)
		c.Next()
	}
}

// authorize checks that an authenticated caller acts as userID. It writes
// 403 and returns false on mismatch.
func (h *Handler) authorize(c *gin.Context, userID string) bool {
	authenticated := c.GetString(authUserIDKey)
	if authenticated == "" || authenticated == userID {
		return true
	}

	h.logger.Warn("Identity mismatch",
		zap.String("path", c.FullPath()),
		zap.String("token_user_id", authenticated),
		zap.String("user_id", userID))
	c.JSON(http.StatusForbidden, gin.H{"error": "token does not match userId"})
	return false
}

// captureWriter copies the response body so it can be stored for replay
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotent replays the first response recorded for an Idempotency-Key.
// Keys are scoped to the caller and the request body, so a key reused by
// another user or for a different payload is not replayed. Server errors
// are not recorded so the client can retry.
func (h *Handler) idempotent() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(idempotencyHeader)
		if h.opts.Idempotency == nil || header == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		key := idempotencyKey(c, header, body)
		ctx := c.Request.Context()

		status, body, found, err := h.opts.Idempotency.LoadResponse(ctx, key)
		if err != nil {
			h.logger.Warn("Failed to load idempotent response", zap.Error(err))
		}
		if found {
			c.Header(replayHeader, "true")
			c.Data(status, "application/json; charset=utf-8", body)
			c.Abort()
			return
		}

		writer := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		c.Next()

		if writer.Status() >= http.StatusInternalServerError {
			return
		}
		if err := h.opts.Idempotency.SaveResponse(ctx, key, writer.Status(), writer.body.Bytes()); err != nil {
			h.logger.Warn("Failed to save idempotent response",
				zap.String("idempotency_key", header),
				zap.Error(err))
		}
	}
}

func idempotencyKey(c *gin.Context, header string, body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("%s:%s:%s:%s:%x",
		c.Request.Method,
		c.Request.URL.Path,
		c.GetString(authUserIDKey),
		header,
		sum[:12])
}
