// Package telemetry records lightweight request traces. Requests are
// sampled at a low rate; everything else only leaves a record when it
// was slow. Trace lines are appended as JSON to a file under the state
// directory so they survive restarts without needing a collector.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

type ctxKey struct{}

var (
	sinkOnce sync.Once
	sinkCh   chan []byte

	reqCtr  uint64
	spanCtr uint64

	// 1 in sampleDenom requests get a full trace; X-Debug-Telemetry: 1
	// forces one.
	sampleDenom   int64 = 1000
	slowThreshold       = 200 * time.Millisecond

	dirMu    sync.Mutex
	stateDir string
)

// SetStateDir points the trace sink at a directory. Call before the
// first request; later calls have no effect once the sink is open.
func SetStateDir(dir string) {
	dirMu.Lock()
	stateDir = dir
	dirMu.Unlock()
}

// SetSlowThreshold sets the duration above which unsampled requests
// still produce a record. Zero or negative records everything.
func SetSlowThreshold(d time.Duration) { slowThreshold = d }

type span struct {
	ID       string `json:"id"`
	Parent   string `json:"parent,omitempty"`
	Op       string `json:"op"`
	StartMs  int64  `json:"start_ms"`
	Duration int64  `json:"duration_ms"`
}

type trace struct {
	RequestID string `json:"request_id"`
	Op        string `json:"op"`
	Duration  int64  `json:"duration_ms"`
	Status    int    `json:"status"`
	Slow      bool   `json:"slow,omitempty"`
	Spans     []span `json:"spans,omitempty"`

	start time.Time
	mu    sync.Mutex
	stack []string
}

// Middleware times every request, attaches a trace to sampled ones, and
// feeds the sink.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := nextRequestID()

		var tr *trace
		if shouldSample(r) {
			tr = &trace{RequestID: reqID, Op: r.URL.Path, start: start}
			root := nextSpanID()
			tr.Spans = append(tr.Spans, span{ID: root, Op: tr.Op})
			tr.stack = append(tr.stack, root)
			r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, tr))
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)

		if tr != nil {
			tr.mu.Lock()
			tr.Status = rec.status
			tr.Duration = dur.Milliseconds()
			emit(tr)
			tr.mu.Unlock()
			return
		}
		if dur > slowThreshold {
			emit(&trace{
				RequestID: reqID,
				Op:        r.URL.Path,
				Duration:  dur.Milliseconds(),
				Status:    rec.status,
				Slow:      true,
			})
		}
	})
}

// StartSpan opens a child span on the request's trace and returns the
// function that closes it. Without an active trace it costs a context
// lookup and nothing else.
func StartSpan(ctx context.Context, op string) func() {
	tr, ok := ctx.Value(ctxKey{}).(*trace)
	if !ok {
		return func() {}
	}
	id := nextSpanID()
	startRel := time.Since(tr.start).Milliseconds()

	tr.mu.Lock()
	parent := ""
	if len(tr.stack) > 0 {
		parent = tr.stack[len(tr.stack)-1]
	}
	tr.Spans = append(tr.Spans, span{ID: id, Parent: parent, Op: op, StartMs: startRel})
	tr.stack = append(tr.stack, id)
	idx := len(tr.Spans) - 1
	tr.mu.Unlock()

	return func() {
		endRel := time.Since(tr.start).Milliseconds()
		tr.mu.Lock()
		if idx < len(tr.Spans) {
			tr.Spans[idx].Duration = endRel - tr.Spans[idx].StartMs
		}
		if len(tr.stack) > 0 {
			tr.stack = tr.stack[:len(tr.stack)-1]
		}
		tr.mu.Unlock()
	}
}

func emit(tr *trace) {
	b, err := json.Marshal(tr)
	if err != nil {
		return
	}
	sinkOnce.Do(openSink)
	select {
	case sinkCh <- b:
	default:
		// never block a response on the trace sink
	}
}

func openSink() {
	sinkCh = make(chan []byte, 1024)
	go func() {
		dirMu.Lock()
		dir := stateDir
		dirMu.Unlock()
		if dir == "" {
			dir = filepath.Join("logs", "telemetry")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return
		}
		f, err := os.OpenFile(filepath.Join(dir, "requests.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		for b := range sinkCh {
			f.Write(append(b, '\n'))
		}
	}()
}

func shouldSample(r *http.Request) bool {
	if r.Header.Get("X-Debug-Telemetry") == "1" {
		return true
	}
	if sampleDenom <= 1 {
		return true
	}
	return int64(atomic.LoadUint64(&reqCtr))%sampleDenom == 0
}

func nextRequestID() string {
	n := atomic.AddUint64(&reqCtr, 1)
	return fmt.Sprintf("r-%s-%d", time.Now().Format("20060102T150405"), n)
}

func nextSpanID() string {
	return fmt.Sprintf("s-%d", atomic.AddUint64(&spanCtr, 1))
}

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the underlying writer so SSE responses keep
// streaming through the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
