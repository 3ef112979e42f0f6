package queue

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
)

type routerLogger struct {
	entry *logrus.Entry
}

func newRouterLogger(entry *logrus.Entry) watermill.LoggerAdapter {
	return &routerLogger{entry: entry}
}

func (l *routerLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).WithError(err).Error(msg)
}

func (l *routerLogger) Info(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l *routerLogger) Debug(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l *routerLogger) Trace(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Trace(msg)
}

func (l *routerLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &routerLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}
