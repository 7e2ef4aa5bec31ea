package logger_test

import (
	"context"
	"testing"

	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
)

func TestFromContext_ReturnsStoredLogger(t *testing.T) {
	t.Parallel()

	stored := logger.Must(logger.Config{Level: "error"})
	ctx := logger.WithContext(context.Background(), stored)

	if got := logger.FromContext(ctx, logger.NewNop()); got != stored {
		t.Errorf("FromContext returned %v, want the stored logger", got)
	}
}

func TestFromContext_EmptyContextUsesFallback(t *testing.T) {
	t.Parallel()

	fallback := logger.Must(logger.Config{Level: "error"})

	if got := logger.FromContext(context.Background(), fallback); got != fallback {
		t.Errorf("FromContext returned %v, want fallback", got)
	}
	if got := logger.FromContext(context.Background(), nil); got == nil {
		t.Error("FromContext with nil fallback returned nil, want a no-op logger")
	}
}
