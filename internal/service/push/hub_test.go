package push

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub("node-test")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub, cancel
}

func register(t *testing.T, hub *Hub, userID string) *Client {
	t.Helper()
	c := &Client{hub: hub, send: make(chan []byte, 4), userID: userID}
	hub.register <- c

	// register 经由 Hub 循环异步生效
	require.Eventually(t, func() bool {
		hub.lock.RLock()
		defer hub.lock.RUnlock()
		return hub.clients[userID] == c
	}, time.Second, time.Millisecond)
	return c
}

func TestHubPushesToRegisteredUser(t *testing.T) {
	hub, _ := startHub(t)
	c := register(t, hub, "user-1")

	require.True(t, hub.Push("user-1", []byte("hello")))
	assert.Equal(t, []byte("hello"), <-c.send)

	assert.False(t, hub.Push("user-unknown", []byte("hello")))
}

func TestHubDropsWhenSendBufferFull(t *testing.T) {
	hub, _ := startHub(t)
	register(t, hub, "user-1")

	for i := 0; i < 4; i++ {
		require.True(t, hub.Push("user-1", []byte("m")))
	}
	assert.False(t, hub.Push("user-1", []byte("overflow")))
}

func TestHubPushDuringReconnectDoesNotPanic(t *testing.T) {
	hub, _ := startHub(t)
	register(t, hub, "user-1")

	// 并发推送撞上同一用户的反复重连。重连会关闭旧连接的 send 通道，
	// 推送必须和关闭串行化，否则会 panic 在已关闭的通道上。
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					hub.Push("user-1", []byte("m"))
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		register(t, hub, "user-1")
	}
	close(stop)
	wg.Wait()
}

func TestHubShutdownUnblocksUnregister(t *testing.T) {
	hub, cancel := startHub(t)
	c := register(t, hub, "user-1")

	cancel()
	require.Eventually(t, func() bool {
		select {
		case <-hub.done:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	// 连接断开晚于 Hub 关停时，注销不能把读泵永远卡死
	finished := make(chan struct{})
	go func() {
		select {
		case hub.unregister <- c:
		case <-hub.done:
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("unregister blocked after hub shutdown")
	}
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	hub, _ := startHub(t)
	c := register(t, hub, "user-1")

	hub.unregister <- c

	require.Eventually(t, func() bool {
		return !hub.Push("user-1", []byte("gone"))
	}, time.Second, time.Millisecond)

	_, open := <-c.send
	assert.False(t, open)
}
