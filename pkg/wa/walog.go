package wa

import (
	"github.com/rs/zerolog"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// zerologWALog adapts zerolog to whatsmeow's log interface so library
// internals land in the same structured stream as the rest of the daemon.
type zerologWALog struct {
	log zerolog.Logger
}

// NewWALogger wraps a zerolog logger for use by whatsmeow.
func NewWALogger(log zerolog.Logger) waLog.Logger {
	return zerologWALog{log: log}
}

func (l zerologWALog) Errorf(msg string, args ...any) {
	l.log.Error().Msgf(msg, args...)
}

func (l zerologWALog) Warnf(msg string, args ...any) {
	l.log.Warn().Msgf(msg, args...)
}

func (l zerologWALog) Infof(msg string, args ...any) {
	l.log.Info().Msgf(msg, args...)
}

func (l zerologWALog) Debugf(msg string, args ...any) {
	l.log.Debug().Msgf(msg, args...)
}

func (l zerologWALog) Sub(module string) waLog.Logger {
	return zerologWALog{log: l.log.With().Str("wa_module", module).Logger()}
}
