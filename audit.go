package goGuard

import (
	"io"

	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/rs/zerolog"
)

// AuditEvent is one audit record. See internal/audit for the field layout.
type AuditEvent = audit.Event

// AuditSink receives audit events from the async dispatcher.
type AuditSink = audit.Sink

// NoOpSink discards audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers events in a channel, mostly for tests.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// ZerologAuditSink writes events as structured log lines.
type ZerologAuditSink = audit.ZerologSink

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a sink that writes JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewZerologAuditSink creates a sink that logs through logger.
func NewZerologAuditSink(logger zerolog.Logger) *ZerologAuditSink {
	return audit.NewZerologSink(logger)
}
