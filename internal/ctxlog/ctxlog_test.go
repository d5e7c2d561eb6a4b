package ctxlog_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/delaneyj/proxyparty/internal/ctxlog"
	"github.com/delaneyj/proxyparty/internal/logspy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attrsOf(record slog.Record) map[string]string {
	out := map[string]string{}
	record.Attrs(func(attr slog.Attr) bool {
		out[attr.Key] = attr.Value.String()
		return true
	})
	return out
}

// should fall back to the default logger when ctx carries none
func TestFromContextDefault(t *testing.T) {
	assert.Same(t, slog.Default(), ctxlog.FromContext(context.Background()))
}

// should hand back the logger stored in ctx
func TestWithLogger(t *testing.T) {
	spy := logspy.New()
	logger := spy.Logger()
	ctx := ctxlog.WithLogger(context.Background(), logger)
	assert.Same(t, logger, ctxlog.FromContext(ctx))
}

// should stack attributes on nested contexts without touching the parent
func TestWith(t *testing.T) {
	spy := logspy.New()
	root := ctxlog.WithLogger(context.Background(), spy.Logger())

	fileCtx, _ := ctxlog.With(root, "path", "cart.hcl")
	stepCtx, stepLogger := ctxlog.With(fileCtx, "step", "bump")
	assert.Same(t, stepLogger, ctxlog.FromContext(stepCtx))

	ctxlog.FromContext(stepCtx).Info("in step", "n", 1)
	ctxlog.FromContext(fileCtx).Info("in file")
	ctxlog.FromContext(root).Info("bare")

	records := spy.Records()
	require.Len(t, records, 3)
	assert.Equal(t, map[string]string{"path": "cart.hcl", "step": "bump", "n": "1"}, attrsOf(records[0]))
	assert.Equal(t, map[string]string{"path": "cart.hcl"}, attrsOf(records[1]))
	assert.Empty(t, attrsOf(records[2]))
}
