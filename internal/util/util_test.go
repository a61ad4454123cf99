package util

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMarshalJSON(t *testing.T) {
	data, err := MarshalJSON(map[string]string{"username": "alice"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"alice"}`, string(data))
}

func TestMarshalJSON_Error(t *testing.T) {
	_, err := MarshalJSON(make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON marshal error")
}

func TestUnmarshalJSON(t *testing.T) {
	var out struct {
		Username string `json:"username"`
	}
	require.NoError(t, UnmarshalJSON([]byte(`{"username":"bob"}`), &out))
	assert.Equal(t, "bob", out.Username)

	err := UnmarshalJSON([]byte(`{not json`), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON unmarshal error")
}

func TestNewTimeoutContext(t *testing.T) {
	ctx, cancel := NewTimeoutContext(10 * time.Millisecond)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 50*time.Millisecond)
}

func TestSafeGo_RecoversPanic(t *testing.T) {
	logger := zap.NewNop().Sugar()

	var wg sync.WaitGroup
	wg.Add(1)
	SafeGo(logger, "test", func() {
		defer wg.Done()
		panic("boom")
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// panic was recovered, goroutine completed
	case <-time.After(time.Second):
		t.Fatal("SafeGo goroutine did not complete")
	}
}

func TestLogError_DoesNotPanic(t *testing.T) {
	logger := zap.NewNop().Sugar()
	assert.NotPanics(t, func() {
		LogError(logger, "test", "do the thing", errors.New("nope"), "key", "value")
	})
}
