package confluence

import (
	"fmt"
	"log/slog"
	"strings"
)

// restyLogger routes resty's own messages (retries, invalid responses)
// through slog instead of resty's stderr logger.
type restyLogger struct {
	log *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.log.Error(message(format, v...))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.log.Warn(message(format, v...))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.log.Debug(message(format, v...))
}

func message(format string, v ...any) string {
	return strings.TrimSpace(fmt.Sprintf(format, v...))
}
