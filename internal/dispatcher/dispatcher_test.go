package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.record("DEBUG", msg, keysAndValues)
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.record("INFO", msg, keysAndValues)
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.record("ERROR", msg, keysAndValues)
}

func (l *testLogger) record(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *testLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	t.Helper()
	logger := &testLogger{}
	d, err := New(logger)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Command
	d.Register("timeline:seek", func(c Command) (any, error) {
		got = c
		return "result", nil
	})

	result, err := d.Dispatch(Command{Name: "timeline:seek", Args: []string{"120"}})
	require.NoError(t, err)
	assert.Equal(t, "result", result)
	assert.Equal(t, []string{"120"}, got.Args)
	assert.False(t, got.Timestamp.IsZero())
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Command{Name: "scene:explode"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.Register("stream:update", func(c Command) (any, error) {
		processed.Add(1)
		wg.Done()
		return nil, nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(Command{Name: "stream:update"})
		require.NoError(t, err)
		assert.Equal(t, Queued, result)
	}

	wg.Wait()
	assert.Equal(t, int32(3), processed.Load())
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	d.Register("stream:update", func(c Command) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(2))

	_, err := d.Dispatch(Command{Name: "stream:update"})
	require.NoError(t, err)
	<-started

	// queue holds two while the first is being handled
	_, err = d.Dispatch(Command{Name: "stream:update"})
	require.NoError(t, err)
	_, err = d.Dispatch(Command{Name: "stream:update"})
	require.NoError(t, err)

	_, err = d.Dispatch(Command{Name: "stream:update"})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	d.Register("drift:record", func(c Command) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	_, _ = d.Dispatch(Command{Name: "drift:record"})
	<-started
	_, _ = d.Dispatch(Command{Name: "drift:record"})

	done := make(chan struct{})
	go func() {
		_, _ = d.Dispatch(Command{Name: "drift:record"})
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done
}

func TestDispatcher_BufferedHandlerErrorLogged(t *testing.T) {
	logger := &testLogger{}
	d, err := New(logger)
	require.NoError(t, err)

	d.Register("stream:update", func(c Command) (any, error) {
		return nil, errors.New("socket gone")
	}, Buffered(4))

	_, err = d.Dispatch(Command{Name: "stream:update"})
	require.NoError(t, err)
	d.Close()

	msgs := logger.snapshot()
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasPrefix(msgs[0], "ERROR: buffered command failed"))
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("timeline:toggle", func(c Command) (any, error) {
		return "ok", nil
	}, Logged())

	_, err := d.Dispatch(Command{Name: "timeline:toggle", Args: []string{"a", "b"}})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(logger.snapshot()), 2)
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("scene:edit", func(c Command) (any, error) {
		return nil, fmt.Errorf("test error")
	}, Logged())

	_, err := d.Dispatch(Command{Name: "scene:edit"})
	require.Error(t, err)

	hasError := false
	for _, msg := range logger.snapshot() {
		if strings.HasPrefix(msg, "ERROR") {
			hasError = true
			break
		}
	}
	assert.True(t, hasError, "expected error log message")
}

func TestDispatcher_HasHandlerAndCommands(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register("timeline:skip", func(c Command) (any, error) { return nil, nil })
	d.Register("timeline:reset", func(c Command) (any, error) { return nil, nil })

	assert.True(t, d.HasHandler("timeline:skip"))
	assert.False(t, d.HasHandler("timeline:rewind"))
	assert.Equal(t, []string{"timeline:reset", "timeline:skip"}, d.Commands())
}

func TestDispatcher_CombinedOptions(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)

	d.Register("scene:save", func(c Command) (any, error) {
		processed.Add(1)
		wg.Done()
		return "done", nil
	}, Buffered(100), Logged())

	result, err := d.Dispatch(Command{Name: "scene:save"})
	require.NoError(t, err)
	assert.Equal(t, Queued, result)

	wg.Wait()
	assert.Equal(t, int32(1), processed.Load())
	assert.GreaterOrEqual(t, len(logger.snapshot()), 2)
}

func TestDispatcher_Close(t *testing.T) {
	logger := &testLogger{}
	d, err := New(logger)
	require.NoError(t, err)

	var processed atomic.Int32
	d.Register("stream:update", func(c Command) (any, error) {
		processed.Add(1)
		return nil, nil
	}, Buffered(10))

	for i := 0; i < 5; i++ {
		_, err := d.Dispatch(Command{Name: "stream:update"})
		require.NoError(t, err)
	}
	d.Close()
	d.Close()

	assert.Equal(t, int32(5), processed.Load())
	_, err = d.Dispatch(Command{Name: "stream:update"})
	assert.ErrorIs(t, err, ErrClosed)
}
