package server

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FiberResponseWriter adapts Fiber's context to http.ResponseWriter interface.
// This adapter enables compatibility with standard Go HTTP handlers, here the
// Prometheus exposition handler, while using Fiber's context.
type FiberResponseWriter struct {
	ctx    *fiber.Ctx
	status int
	header http.Header
}

// NewFiberResponseWriter creates a new FiberResponseWriter adapter
func NewFiberResponseWriter(ctx *fiber.Ctx) *FiberResponseWriter {
	return &FiberResponseWriter{
		ctx:    ctx,
		status: 200,
		header: make(http.Header),
	}
}

// Header returns the header map that will be sent by WriteHeader.
// Implements http.ResponseWriter interface.
func (w *FiberResponseWriter) Header() http.Header {
	return w.header
}

// Write writes the data to the connection as part of an HTTP reply.
// Implements http.ResponseWriter interface.
func (w *FiberResponseWriter) Write(data []byte) (int, error) {
	for key, values := range w.header {
		for _, value := range values {
			w.ctx.Set(key, value)
		}
	}
	if w.status != 200 {
		w.ctx.Status(w.status)
	}
	return w.ctx.Write(data)
}

// WriteHeader sends an HTTP response header with the provided status code.
// Implements http.ResponseWriter interface.
func (w *FiberResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
}

// RegisterMetricsRoute exposes the Prometheus registry at /metrics.
func RegisterMetricsRoute(app *fiber.App) {
	handler := promhttp.Handler()
	app.Get("/metrics", func(c *fiber.Ctx) error {
		req, err := http.NewRequest(http.MethodGet, c.OriginalURL(), nil)
		if err != nil {
			return fiber.ErrInternalServerError
		}
		handler.ServeHTTP(NewFiberResponseWriter(c), req)
		return nil
	})
}
