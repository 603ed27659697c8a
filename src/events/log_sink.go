package events

import (
	"github.com/sirupsen/logrus"
)

// LogSink writes one log line per event. Routed through a logger carrying
// an lfshook, it produces the per-node timestamped log file.
type LogSink struct {
	logger *logrus.Entry
	level  logrus.Level
}

// NewLogSink returns a LogSink logging at the given level.
func NewLogSink(logger *logrus.Entry, level logrus.Level) *LogSink {
	return &LogSink{
		logger: logger,
		level:  level,
	}
}

// Notify implements Sink.
func (s *LogSink) Notify(e Event) {
	fields := logrus.Fields{
		"event": e.Type,
	}
	if e.MessageID != "" {
		fields["message_id"] = e.MessageID
	}
	if e.PeerID != "" {
		fields["peer"] = e.PeerID
	}
	if e.Attempt != 0 {
		fields["attempt"] = e.Attempt
	}
	if e.State != "" {
		fields["state"] = e.State
	}
	if e.Reason != "" {
		fields["reason"] = e.Reason
	}

	s.logger.WithFields(fields).Log(s.level, e.Type)
}
