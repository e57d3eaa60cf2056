// ABOUTME: Shared helpers for output tests
// ABOUTME: Quiet logger for backends under test
package output

import (
	"io"
	"log/slog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
