package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	t.Run("no logger yields a working discard logger", func(t *testing.T) {
		logger := FromContext(context.Background())
		assert.NotNil(t, logger)
		logger.Info("Dropped.")
	})

	t.Run("With carries attributes", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))
		ctx = With(ctx, "session_id", "s1")

		FromContext(ctx).Info("Session started.")
		assert.Contains(t, buf.String(), "session_id=s1")
		assert.Contains(t, buf.String(), `msg="Session started."`)
	})
}
