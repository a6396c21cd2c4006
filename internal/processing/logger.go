package processing

import "log"

// Logf is the package diagnostic logger. It defaults to log.Printf and may
// be replaced with SetLogger.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}
