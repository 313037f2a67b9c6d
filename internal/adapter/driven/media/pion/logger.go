package pion

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// loggerFactory sends pion's internal logging to zerolog. pion is chatty,
// so everything below warn is shifted one level down.
type loggerFactory struct{}

func (loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return scopedLogger{l: log.With().Str("component", "pion").Str("scope", scope).Logger()}
}

type scopedLogger struct {
	l zerolog.Logger
}

func (s scopedLogger) Trace(msg string)                          { s.l.Trace().Msg(msg) }
func (s scopedLogger) Tracef(format string, args ...interface{}) { s.l.Trace().Msg(fmt.Sprintf(format, args...)) }
func (s scopedLogger) Debug(msg string)                          { s.l.Trace().Msg(msg) }
func (s scopedLogger) Debugf(format string, args ...interface{}) { s.l.Trace().Msg(fmt.Sprintf(format, args...)) }
func (s scopedLogger) Info(msg string)                           { s.l.Debug().Msg(msg) }
func (s scopedLogger) Infof(format string, args ...interface{})  { s.l.Debug().Msg(fmt.Sprintf(format, args...)) }
func (s scopedLogger) Warn(msg string)                           { s.l.Warn().Msg(msg) }
func (s scopedLogger) Warnf(format string, args ...interface{})  { s.l.Warn().Msg(fmt.Sprintf(format, args...)) }
func (s scopedLogger) Error(msg string)                          { s.l.Error().Msg(msg) }
func (s scopedLogger) Errorf(format string, args ...interface{}) { s.l.Error().Msg(fmt.Sprintf(format, args...)) }
