package progress

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogSink mirrors events to zap.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink. A nil logger uses zap.L().
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.L()
	}
	return &LogSink{logger: logger}
}

func (l *LogSink) Emit(e Event) {
	level := zapcore.DebugLevel
	switch e.Status {
	case StatusError:
		level = zapcore.ErrorLevel
	case StatusVerificationRequired:
		level = zapcore.WarnLevel
	case StatusStarting, StatusAreaStart, StatusCategoryStart, StatusBusinessesFound,
		StatusViolationFound, StatusLeadFound, StatusCompleted, StatusStopped, StatusInfo:
		level = zapcore.InfoLevel
	}
	ce := l.logger.Check(level, "progress: "+string(e.Status))
	if ce == nil {
		return
	}

	fields := make([]zap.Field, 0, 8)
	if e.RunID != "" {
		fields = append(fields, zap.String("run_id", e.RunID))
	}
	if e.Area != "" {
		fields = append(fields, zap.String("area", e.Area))
	}
	if e.Category != "" {
		fields = append(fields, zap.String("category", e.Category))
	}
	if e.Business != "" {
		fields = append(fields, zap.String("business", e.Business))
	}
	if e.Total > 0 {
		fields = append(fields, zap.Int("current", e.Current), zap.Int("total", e.Total))
	}
	if e.Count > 0 {
		fields = append(fields, zap.Int("count", e.Count))
	}
	if e.Message != "" {
		fields = append(fields, zap.String("message", e.Message))
	}
	ce.Write(fields...)
}

// Recorder keeps the most recent events of a run with stable sequence
// numbers, so pollers can ask for everything after a cursor. Events live in
// a ring of at most max entries.
type Recorder struct {
	mu    sync.Mutex
	ring  []Event
	head  int // index of the oldest event once the ring is full
	first int // sequence number of the oldest kept event
	max   int
	done  bool
}

// NewRecorder keeps at most max events. max < 1 keeps 1000.
func NewRecorder(max int) *Recorder {
	if max < 1 {
		max = 1000
	}
	return &Recorder{max: max}
}

// Emit implements Sink.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ring) < r.max {
		r.ring = append(r.ring, e)
	} else {
		r.ring[r.head] = e
		r.head = (r.head + 1) % r.max
		r.first++
	}
	if e.Status.Terminal() {
		r.done = true
	}
}

// Since returns events with sequence >= cursor and the next cursor. Events
// already evicted are skipped.
func (r *Recorder) Since(cursor int) ([]Event, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cursor < r.first {
		cursor = r.first
	}
	end := r.first + len(r.ring)
	if cursor >= end {
		return nil, end
	}
	out := make([]Event, 0, end-cursor)
	for seq := cursor; seq < end; seq++ {
		out = append(out, r.ring[(r.head+seq-r.first)%len(r.ring)])
	}
	return out, end
}

// Done reports whether a terminal event was recorded.
func (r *Recorder) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}
