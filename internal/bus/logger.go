package bus

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// zerologAdapter lets watermill log through the bridge's zerolog logger.
type zerologAdapter struct {
	log zerolog.Logger
}

// NewLogger adapts log to watermill.LoggerAdapter.
func NewLogger(log zerolog.Logger) watermill.LoggerAdapter {
	return zerologAdapter{log: log}
}

func (a zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

// Info is demoted to debug: gochannel reports every message dropped for lack
// of subscribers at info level.
func (a zerologAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return zerologAdapter{log: a.log.With().Fields(map[string]interface{}(fields)).Logger()}
}
