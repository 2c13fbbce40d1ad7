package logging

import "github.com/sirupsen/logrus"

// LogrusLogger adapts a *logrus.Logger to Logger.
type LogrusLogger struct {
	entry *logrus.Logger
}

func NewLogrusLogger(entry *logrus.Logger) *LogrusLogger {
	if entry == nil {
		entry = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: entry}
}

func (l *LogrusLogger) Debug(msg string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l *LogrusLogger) Warn(msg string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Warn(msg)
}

func (l *LogrusLogger) Error(msg string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Error(msg)
}
