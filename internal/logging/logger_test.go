package logging

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFactory struct {
	contexts []context.Context
}

func (f *recordingFactory) CreateLogger(ctx context.Context) Logger {
	f.contexts = append(f.contexts, ctx)
	return newLogrusLogger(ctx)
}

func TestNewLoggerAttachesRunID(t *testing.T) {
	var buf bytes.Buffer
	Configure("debug", &buf)
	t.Cleanup(func() { Configure("info", os.Stderr) })

	ctx := WithRunID(context.Background(), "run-42")
	NewLogger(ctx).WithField("step", "upload").Infof("uploaded %d bytes", 12)

	out := buf.String()
	assert.Contains(t, out, "run_id=run-42")
	assert.Contains(t, out, "step=upload")
	assert.Contains(t, out, "uploaded 12 bytes")
}

func TestConfigureFallsBackToInfo(t *testing.T) {
	Configure("not-a-level", nil)
	assert.Equal(t, logrus.InfoLevel, base.GetLevel())
}

func TestSetLoggerFactoryOverridesDefault(t *testing.T) {
	factory := &recordingFactory{}
	SetLoggerFactory(factory)
	t.Cleanup(func() { SetLoggerFactory(nil) })

	logger := NewLogger(context.Background())
	require.NotNil(t, logger)
	assert.Len(t, factory.contexts, 1)
}

func TestRunIDMissing(t *testing.T) {
	assert.Empty(t, RunID(context.Background()))
}
