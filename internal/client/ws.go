package client

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// WatchHandler receives events from Watch. OnConnect runs after every
// successful (re)connect, before any notification from that connection, so
// the caller can re-read full state.
type WatchHandler struct {
	OnConnect      func()
	OnNotification func(Notification)
	OnDisconnect   func(err error)
}

// WSURL derives the push endpoint from an HTTP base URL.
func WSURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + "/ws"
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + "/ws"
	}
	return baseURL + "/ws"
}

// Watch follows the daemon's notifications until ctx is done, reconnecting
// with exponential backoff whenever the connection drops.
func Watch(ctx context.Context, wsURL string, h WatchHandler) error {
	delay := reconnectBaseDelay
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("ws dial error: %v (retry in %v)", err, delay)
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			delay = min(delay*2, reconnectMaxDelay)
			continue
		}
		delay = reconnectBaseDelay

		if h.OnConnect != nil {
			h.OnConnect()
		}
		err = readLoop(ctx, conn, h.OnNotification)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if h.OnDisconnect != nil {
			h.OnDisconnect(err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// readLoop dispatches messages from conn until it fails or ctx is done.
func readLoop(ctx context.Context, conn *websocket.Conn, handle func(Notification)) error {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pingLoop(ctx, conn, done)
	}()
	defer func() {
		close(done)
		conn.Close()
		wg.Wait()
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var n Notification
		if err := json.Unmarshal(data, &n); err != nil {
			continue
		}
		if handle != nil {
			handle(n)
		}
	}
}

// pingLoop owns writes on conn. Cancelling ctx closes the connection so the
// blocked reader returns.
func pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
