package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/momentics/hioload-httpd/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(ctx context.Context, args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestMissingPortPrintsUsage(t *testing.T) {
	out, err := execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "hioload-httpd <port>")
}

func TestExtraArgumentsRejected(t *testing.T) {
	_, err := execute(context.Background(), "8080", "9090")
	assert.Error(t, err)
}

func TestInvalidPort(t *testing.T) {
	_, err := execute(context.Background(), "http")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := execute(context.Background(), "--docroot", t.TempDir(), "--log-level", "loud", "0")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestInvalidConfigRejected(t *testing.T) {
	_, err := execute(context.Background(), "--workers", "0", "--log-level", "error", "0")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := execute(ctx, "--docroot", t.TempDir(), "--workers", "1", "--log-level", "error", "--metrics-stdout", "0")
	assert.NoError(t, err)
}
