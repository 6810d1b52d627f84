// Package notify defines the outbound progress channel the pipeline
// reports through. The core never awaits a response from the sink; it is
// a fire-and-forget notification capability, which keeps the pipeline
// testable without any UI attached.
package notify

import "log/slog"

// Notifier receives human-readable progress and error lines.
type Notifier interface {
	Notify(message string)
}

// Func adapts a plain function to the Notifier interface.
type Func func(message string)

func (f Func) Notify(message string) { f(message) }

// Slog returns a Notifier that forwards every line to slog at info level.
func Slog() Notifier {
	return Func(func(message string) {
		slog.Info(message)
	})
}

// Discard swallows all notifications.
func Discard() Notifier {
	return Func(func(string) {})
}
