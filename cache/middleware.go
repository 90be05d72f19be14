package cache

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware serves GET responses of one section from the store. The entry
// key is the route parameter keyParam, or the section index when empty.
// Only 200 responses with the given content type and without
// Cache-Control: no-store are stored.
func (s *Store) Middleware(section, keyParam, contentType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := ""
		if keyParam != "" {
			key = c.Param(keyParam)
			if key == "" {
				c.Next()
				return
			}
		}

		if cached, found := s.Read(section, key); found {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, contentType, cached)
			c.Abort()
			return
		}

		c.Header("X-Cache", "MISS")

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
		}
		c.Writer = writer

		c.Next()

		header := c.Writer.Header()
		if c.Writer.Status() == http.StatusOK &&
			header.Get("Content-Type") == contentType &&
			!strings.Contains(header.Get("Cache-Control"), "no-store") {
			if err := s.Write(section, key, writer.body.Bytes()); err != nil {
				log.Warn().Err(err).Str("section", section).Str("key", key).Msg("cache write failed")
			}
		}
	}
}
