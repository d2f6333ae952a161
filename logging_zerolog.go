package jailbridge

import "github.com/rs/zerolog"

// ZerologAdapter satisfies SLogger over a zerolog.Logger, the structured
// logging backend this module ships by default. Any other SLogger
// implementation (e.g. one backed by log/slog) works just as well; this
// is the one the CLI wires up.
type ZerologAdapter struct {
	log zerolog.Logger
}

// NewZerologAdapter wraps an existing zerolog.Logger as an SLogger.
func NewZerologAdapter(log zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{log: log}
}

func (z *ZerologAdapter) Debug(msg string, args ...any) { z.event(z.log.Debug(), msg, args) }
func (z *ZerologAdapter) Info(msg string, args ...any)  { z.event(z.log.Info(), msg, args) }
func (z *ZerologAdapter) Warn(msg string, args ...any)  { z.event(z.log.Warn(), msg, args) }
func (z *ZerologAdapter) Error(msg string, args ...any) { z.event(z.log.Error(), msg, args) }

// event applies loosely-typed key/value pairs to a zerolog event before
// sending msg. It does not panic on a malformed args slice: a pair whose
// key is not a string is skipped, and a trailing unpaired value is ignored.
func (z *ZerologAdapter) event(ev *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, args[i+1])
	}
	ev.Msg(msg)
}
