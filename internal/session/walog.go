package session

import (
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"

	logx "wabot/pkg/logx"
)

// waLogger bridges whatsmeow's logger interface onto logx.
type waLogger struct {
	log logx.Logger
}

func newWALogger(log logx.Logger, module string) waLog.Logger {
	return &waLogger{log: log.With(logx.String("wa", module))}
}

func (l *waLogger) Errorf(msg string, args ...any) { l.log.Error(fmt.Sprintf(msg, args...)) }
func (l *waLogger) Warnf(msg string, args ...any)  { l.log.Warn(fmt.Sprintf(msg, args...)) }
func (l *waLogger) Infof(msg string, args ...any)  { l.log.Debug(fmt.Sprintf(msg, args...)) }
func (l *waLogger) Debugf(msg string, args ...any) { l.log.Trace(fmt.Sprintf(msg, args...)) }

func (l *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{log: l.log.With(logx.String("wa_sub", module))}
}
