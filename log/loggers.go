package log

import (
	"fmt"
	"log"
	"time"
)

// Info takes a pointer subLogger struct and string and writes it out
func Info(sl *SubLogger, data string) {
	mu.RLock()
	defer mu.RUnlock()
	sl.getFields().stage(logger.InfoHeader, func() string { return data })
}

// Infoln takes a pointer subLogger struct and interface and writes it out
func Infoln(sl *SubLogger, v ...any) {
	mu.RLock()
	defer mu.RUnlock()
	sl.getFields().stage(logger.InfoHeader, func() string { return fmt.Sprintln(v...) })
}

// Infof takes a pointer subLogger struct, string and interface formats and
// writes it out
func Infof(sl *SubLogger, data string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()
	sl.getFields().stage(logger.InfoHeader, func() string { return fmt.Sprintf(data, v...) })
}

// Debug takes a pointer subLogger struct and string and writes it out
func Debug(sl *SubLogger, data string) {
	mu.RLock()
	defer mu.RUnlock()
	sl.getFields().stage(logger.DebugHeader, func() string { return data })
}

// Debugln takes a pointer subLogger struct and interface and writes it out
func Debugln(sl *SubLogger, v ...any) {
	mu.RLock()
	defer mu.RUnlock()
	sl.getFields().stage(logger.DebugHeader, func() string { return fmt.Sprintln(v...) })
}

// Debugf takes a pointer subLogger struct, string and interface formats and
// writes it out
func Debugf(sl *SubLogger, data string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()
	sl.getFields().stage(logger.DebugHeader, func() string { return fmt.Sprintf(data, v...) })
}

// Warn takes a pointer subLogger struct and string and writes it out
func Warn(sl *SubLogger, data string) {
	mu.RLock()
	defer mu.RUnlock()
	sl.getFields().stage(logger.WarnHeader, func() string { return data })
}

// Warnln takes a pointer subLogger struct and interface and writes it out
func Warnln(sl *SubLogger, v ...any) {
	mu.RLock()
	defer mu.RUnlock()
	sl.getFields().stage(logger.WarnHeader, func() string { return fmt.Sprintln(v...) })
}

// Warnf takes a pointer subLogger struct, string and interface formats and
// writes it out
func Warnf(sl *SubLogger, data string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()
	sl.getFields().stage(logger.WarnHeader, func() string { return fmt.Sprintf(data, v...) })
}

// Error takes a pointer subLogger struct and string and writes it out
func Error(sl *SubLogger, data string) {
	mu.RLock()
	defer mu.RUnlock()
	sl.getFields().stage(logger.ErrorHeader, func() string { return data })
}

// Errorln takes a pointer subLogger struct and interface and writes it out
func Errorln(sl *SubLogger, v ...any) {
	mu.RLock()
	defer mu.RUnlock()
	sl.getFields().stage(logger.ErrorHeader, func() string { return fmt.Sprintln(v...) })
}

// Errorf takes a pointer subLogger struct, string and interface formats and
// writes it out
func Errorf(sl *SubLogger, data string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()
	sl.getFields().stage(logger.ErrorHeader, func() string { return fmt.Sprintf(data, v...) })
}

func displayError(err error) {
	if err != nil {
		log.Printf("Logger write error: %v\n", err)
	}
}

func (l *logFields) enabled(header string) bool {
	switch header {
	case l.logger.InfoHeader:
		return l.info
	case l.logger.WarnHeader:
		return l.warn
	case l.logger.ErrorHeader:
		return l.error
	case l.logger.DebugHeader:
		return l.debug
	}
	return false
}

// stage renders and writes a log line when the level is enabled. The message
// is only built once the level check passes.
func (l *logFields) stage(header string, msg func() string) {
	if l == nil || !l.enabled(header) {
		return
	}
	if l.output == nil {
		return
	}
	_, err := l.output.Write([]byte(l.logger.newLogEvent(msg(), header, l.name, time.Now())))
	displayError(err)
}
