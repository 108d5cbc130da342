//go:build !windows

package services

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"stars-host/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestEngineInvoker_TimeoutKillsProcessGroup(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	log, logs := testutil.ObservedLogger()
	timeout := 2 * time.Second
	e := NewEngineInvoker(fakeEngineConfig(t, "hang", timeout), log)
	dir := t.TempDir()

	start := time.Now()
	res, err := e.Run(context.Background(), ModeGenerate, dir)
	elapsed := time.Since(start)

	var timeoutErr *EngineTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, timeout, timeoutErr.Timeout)
	assert.Equal(t, res.PID, timeoutErr.PID)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+3*time.Second)
	assert.Equal(t, 1, logs.FilterMessage("⏰ engine timed out").Len())

	data, err := os.ReadFile(filepath.Join(dir, "child.pid"))
	require.NoError(t, err, "fake engine should have started a helper")
	child, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)

	assert.False(t, processAlive(res.PID))
	assert.Eventually(t, func() bool { return !processAlive(child) }, 2*time.Second, 20*time.Millisecond,
		"engine's helper process should die with it")
}
