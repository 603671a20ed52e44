package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RequestTimeout wraps the whole router with a hard per-request deadline. The handler runs
// with a context that expires after d and writes into a buffer. If it finishes first its
// buffered response is sent unchanged; if the deadline passes first the client receives 408
// and whatever the abandoned handler writes afterwards is discarded.
//
// Wrap the echo instance itself, not a route: echo recycles its Context once the router
// returns, and an abandoned handler may still hold it.
func RequestTimeout(next http.Handler, d time.Duration, log *logrus.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		r = r.WithContext(ctx)

		tw := &timeoutWriter{header: make(http.Header)}
		done := make(chan struct{})
		panicked := make(chan any, 1)

		go func() {
			defer func() {
				if p := recover(); p != nil {
					panicked <- p
				}
			}()
			next.ServeHTTP(tw, r)
			close(done)
		}()

		select {
		case p := <-panicked:
			panic(p)

		case <-done:
			tw.mu.Lock()
			defer tw.mu.Unlock()
			dst := w.Header()
			for k, vv := range tw.header {
				dst[k] = vv
			}
			if tw.code == 0 {
				tw.code = http.StatusOK
			}
			w.WriteHeader(tw.code)
			w.Write(tw.buf.Bytes())

		case <-ctx.Done():
			tw.mu.Lock()
			tw.timedOut = true
			tw.mu.Unlock()

			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				// client went away; nobody to answer
				return
			}

			log.WithFields(logrus.Fields{
				"method":  r.Method,
				"path":    r.URL.Path,
				"timeout": d.String(),
			}).Warn("Request timed out")

			body, _ := json.Marshal(NewTimeoutError(fmt.Sprintf("request exceeded %s", d)))
			w.Header().Set("Content-Type", "application/json; charset=UTF-8")
			w.WriteHeader(http.StatusRequestTimeout)
			w.Write(body)
		}
	})
}

// timeoutWriter buffers a handler's response until the outcome of the race is known.
type timeoutWriter struct {
	mu       sync.Mutex
	header   http.Header
	buf      bytes.Buffer
	code     int
	timedOut bool
}

func (tw *timeoutWriter) Header() http.Header { return tw.header }

func (tw *timeoutWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if tw.code == 0 {
		tw.code = http.StatusOK
	}
	return tw.buf.Write(p)
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.code != 0 {
		return
	}
	tw.code = code
}
