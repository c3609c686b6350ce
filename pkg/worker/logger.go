package worker

import "gitevents/internal"

type Logger interface {
	Printf(format string, args ...interface{})
}

func defaultLogger() Logger {
	return internal.NewLogger("worker")
}
