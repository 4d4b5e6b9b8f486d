// Package audit records the precise reason behind every
// authentication decision. Responses to clients stay generic; this
// log is the only place failure detail is allowed to land.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Event kinds emitted by the orchestrator and validator.
const (
	KindCodeRequested   = "code_requested"
	KindCodeSendFailed  = "code_send_failed"
	KindCodeAccepted    = "code_accepted"
	KindCodeRejected    = "code_rejected"
	KindCodeExpired     = "code_expired"
	KindSubjectInvalid  = "subject_invalid"
	KindTokenAccepted   = "token_accepted"
	KindTokenRejected   = "token_rejected"
	KindRegistrarNotice = "registrar_notified"
)

// Event is one audit record.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Kind      string            `json:"kind"`
	Host      string            `json:"host,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Path      string            `json:"path,omitempty"`
	Success   bool              `json:"success"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives events from the dispatcher.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(data)
	_, _ = s.w.Write([]byte("\n"))
}

// SlogSink forwards events into the structured log stream.
type SlogSink struct {
	Log *slog.Logger
}

func (s SlogSink) Emit(_ context.Context, event Event) {
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	s.Log.Log(context.Background(), level, "audit",
		"kind", event.Kind,
		"host", event.Host,
		"subject", event.Subject,
		"client_ip", event.ClientIP,
		"path", event.Path,
		"success", event.Success,
		"reason", event.Reason,
	)
}
