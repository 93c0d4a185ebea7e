package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// BrotliConfig tunes response compression.
type BrotliConfig struct {
	Quality   int
	MinLength int
	// SkipPaths lists path prefixes that are never compressed.
	SkipPaths []string
}

var DefaultBrotliConfig = BrotliConfig{
	Quality:   brotli.DefaultCompression,
	MinLength: 1024,
	SkipPaths: []string{"/ws/", "/health"},
}

// Brotli compresses JSON responses (papers and violation summaries are the
// large ones) for clients that accept br.
func Brotli() gin.HandlerFunc {
	return BrotliWithConfig(DefaultBrotliConfig)
}

func BrotliWithConfig(cfg BrotliConfig) gin.HandlerFunc {
	if cfg.Quality < brotli.BestSpeed || cfg.Quality > brotli.BestCompression {
		cfg.Quality = brotli.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultBrotliConfig.MinLength
	}

	encoders := sync.Pool{New: func() any { return brotli.NewWriterLevel(nil, cfg.Quality) }}

	return func(c *gin.Context) {
		if !compressible(c, cfg.SkipPaths) {
			c.Next()
			return
		}
		c.Header("Vary", "Accept-Encoding")

		enc := encoders.Get().(*brotli.Writer)
		enc.Reset(c.Writer)
		bw := &brotliWriter{ResponseWriter: c.Writer, enc: enc, threshold: cfg.MinLength}
		c.Writer = bw

		defer func() {
			if err := bw.finish(); err != nil {
				_ = c.Error(err)
			}
			encoders.Put(enc)
		}()
		c.Next()
	}
}

// compressible rejects streams (SSE, WebSocket upgrades), skipped paths and
// clients without br support.
func compressible(c *gin.Context, skip []string) bool {
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") ||
		strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return false
	}
	for _, prefix := range skip {
		if strings.HasPrefix(c.Request.URL.Path, prefix) {
			return false
		}
	}
	return acceptsBrotli(c.Request)
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		// "br;q=0" still counts; nobody sends it.
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, "br") {
			return true
		}
	}
	return false
}

// brotliWriter holds bytes back until the body reaches the threshold, so
// small responses go out uncompressed.
type brotliWriter struct {
	gin.ResponseWriter
	enc       *brotli.Writer
	pending   []byte
	threshold int
	started   bool
}

func (bw *brotliWriter) Write(data []byte) (int, error) {
	if bw.started {
		return bw.enc.Write(data)
	}

	bw.pending = append(bw.pending, data...)
	if len(bw.pending) < bw.threshold {
		return len(data), nil
	}

	h := bw.ResponseWriter.Header()
	h.Set("Content-Encoding", "br")
	h.Del("Content-Length")
	bw.started = true

	if _, err := bw.enc.Write(bw.pending); err != nil {
		return 0, err
	}
	bw.pending = nil
	return len(data), nil
}

func (bw *brotliWriter) WriteString(s string) (int, error) {
	return bw.Write([]byte(s))
}

// Flush pushes out what has been written so far, compressed or not.
func (bw *brotliWriter) Flush() {
	if bw.started {
		_ = bw.enc.Flush()
	} else {
		_ = bw.writePending()
	}
	bw.ResponseWriter.Flush()
}

func (bw *brotliWriter) writePending() error {
	if len(bw.pending) == 0 {
		return nil
	}
	_, err := bw.ResponseWriter.Write(bw.pending)
	bw.pending = nil
	return err
}

func (bw *brotliWriter) finish() error {
	if bw.started {
		return bw.enc.Close()
	}
	return bw.writePending()
}
