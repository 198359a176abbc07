package audit

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

type panicSink struct{ calls int }

func (p *panicSink) Emit(context.Context, Event) {
	p.calls++
	panic("sink failure")
}

func TestNilDispatcherIsSafe(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("expected zero drops on nil dispatcher")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	var dropped []string
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
		OnDrop:     func(e Event) { dropped = append(dropped, e.EventType) },
	}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "login_failure"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink and buffer of one")
	}
	if uint64(len(dropped)) != d.Dropped() || dropped[0] != "login_failure" {
		t.Fatalf("expected the callback to see each dropped event: %v vs %d", dropped, d.Dropped())
	}
	close(sink.release)
	d.Close()
	d.Close()
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "password_changed"})
	}
	d.Close()

	if n := len(sink.Events()); n != 5 {
		t.Fatalf("expected 5 delivered events, got %d", n)
	}
	d.Emit(context.Background(), Event{EventType: "after_close"})
	if n := len(sink.Events()); n != 5 {
		t.Fatalf("expected emits after close to be ignored, got %d", n)
	}
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	sink := &panicSink{}
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, Logger: &logger}, sink)
	d.Emit(context.Background(), Event{EventType: "a"})
	d.Emit(context.Background(), Event{EventType: "b"})
	d.Close()
	if sink.calls != 2 {
		t.Fatalf("expected relay to continue after panic, calls=%d", sink.calls)
	}
	if !strings.Contains(buf.String(), `"event":"b"`) {
		t.Fatalf("expected sink panics to be logged, got %s", buf.String())
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{EventType: "login_success", Username: "admin", Success: true})

	line := buf.String()
	if !strings.HasSuffix(line, "\n") || !strings.Contains(line, `"event_type":"login_success"`) {
		t.Fatalf("unexpected json line %q", line)
	}
}

func TestZerologSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	s := NewZerologSink(zerolog.New(&buf))
	s.Emit(context.Background(), Event{
		Timestamp: time.Unix(0, 0),
		EventType: "two_factor_failed",
		AccountID: "7",
		Metadata:  map[string]string{"method": "email"},
	})

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"event":"two_factor_failed"`, `"account_id":"7"`, `"method":"email"`, `"component":"audit"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}
