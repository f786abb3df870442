package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeLog struct {
	mu    sync.Mutex
	names []string
}

func (l *closeLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func (l *closeLog) closer(name string, err error) *lockedCloser {
	return &lockedCloser{log: l, name: name, err: err}
}

type lockedCloser struct {
	log  *closeLog
	name string
	err  error
}

func (c *lockedCloser) Close() error {
	c.log.mu.Lock()
	defer c.log.mu.Unlock()
	c.log.names = append(c.log.names, c.name)
	return c.err
}

func TestShutdown_WaitsForEveryGoroutine(t *testing.T) {
	server := make(chan struct{})
	warmer := make(chan struct{})
	closed := &closeLog{}

	done := shutdown([]<-chan struct{}{server, warmer}, closed.closer("redis", nil))

	close(server)
	assert.Never(t, func() bool {
		return len(closed.snapshot()) > 0
	}, 50*time.Millisecond, 5*time.Millisecond, "redis closed while the warmer still runs")

	select {
	case <-done:
		t.Fatal("shutdown finished before the warmer stopped")
	default:
	}

	close(warmer)
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"redis"}, closed.snapshot())
}

func TestShutdown_ClosesInOrderDespiteErrors(t *testing.T) {
	stopped := make(chan struct{})
	close(stopped)
	closed := &closeLog{}

	done := shutdown([]<-chan struct{}{stopped},
		closed.closer("redis", errors.New("connection reset")),
		closed.closer("log file", nil),
	)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not finish")
	}
	assert.Equal(t, []string{"redis", "log file"}, closed.snapshot())
}
