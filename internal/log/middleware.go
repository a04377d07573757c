// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
)

// HTTPRequest describes an inbound HTTP request for logging purposes.
type HTTPRequest struct {
	Method     string
	Path       string
	RequestID  string
	TraceID    string
	RemoteAddr string
}

// HTTPResponse describes the outcome of an HTTP request.
type HTTPResponse struct {
	Status     int
	Bytes      int
	DurationMs int64
}

// LogHTTPResponse logs a completed HTTP request. Server errors are logged at
// error level, client errors at warn, everything else at info.
func LogHTTPResponse(logger *slog.Logger, req *HTTPRequest, resp *HTTPResponse) {
	attrs := []any{
		"http_method", req.Method,
		"path", req.Path,
		"status", resp.Status,
		"bytes", resp.Bytes,
		DurationKey, resp.DurationMs,
		"remote", req.RemoteAddr,
	}
	if req.RequestID != "" {
		attrs = append(attrs, RequestIDKey, req.RequestID)
	}
	if req.TraceID != "" {
		attrs = append(attrs, TraceIDKey, req.TraceID)
	}

	level := slog.LevelInfo
	switch {
	case resp.Status >= 500:
		level = slog.LevelError
	case resp.Status >= 400:
		level = slog.LevelWarn
	}

	logger.Log(context.Background(), level, "http request completed", attrs...)
}

// HTTPMiddleware returns chi-compatible middleware that logs every request
// once it completes. It reads the request id set by middleware.RequestID and
// the trace id of any span already on the request context.
func HTTPMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			var traceID string
			if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
				traceID = sc.TraceID().String()
			}
			LogHTTPResponse(logger, &HTTPRequest{
				Method:     r.Method,
				Path:       r.URL.Path,
				RequestID:  middleware.GetReqID(r.Context()),
				TraceID:    traceID,
				RemoteAddr: r.RemoteAddr,
			}, &HTTPResponse{
				Status:     status,
				Bytes:      ww.BytesWritten(),
				DurationMs: time.Since(start).Milliseconds(),
			})
		})
	}
}
