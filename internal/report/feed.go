// ABOUTME: WebSocket status feed for dashboards and scripts
// ABOUTME: Every status the player sends to the server is also pushed here as JSON
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/slimplayer/internal/session"
	"github.com/gorilla/websocket"
)

const (
	sendQueue     = 32
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Feed fans status updates out to WebSocket subscribers
type Feed struct {
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	last        []byte

	wg sync.WaitGroup
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// NewFeed creates a feed with no subscribers
func NewFeed() *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			// Status is read-only and meant for the local network
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Handler serves /status (WebSocket) and /status.json (latest snapshot)
func (f *Feed) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", f.handleWebSocket)
	mux.HandleFunc("/status.json", f.handleSnapshot)
	return mux
}

// Run serves the feed on addr until ctx is cancelled
func (f *Feed) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: f.Handler()}

	errChan := make(chan error, 1)
	go func() {
		log.Printf("Status feed listening on %s", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errChan:
		return fmt.Errorf("status feed failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Status feed shutdown error: %v", err)
	}
	f.closeAll()
	f.wg.Wait()
	return nil
}

// Publish sends st to every subscriber. Slow subscribers miss updates
// rather than holding up the player.
func (f *Feed) Publish(st session.Status) {
	data, err := json.Marshal(st)
	if err != nil {
		log.Printf("Error marshaling status: %v", err)
		return
	}

	f.mu.Lock()
	f.last = data
	for sub := range f.subscribers {
		select {
		case sub.send <- data:
		default:
		}
	}
	f.mu.Unlock()
}

// Subscribers returns the number of connected clients
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

func (f *Feed) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	f.mu.RLock()
	data := f.last
	f.mu.RUnlock()

	if data == nil {
		http.Error(w, "no status yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (f *Feed) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	log.Printf("Status subscriber connected from %s", r.RemoteAddr)

	sub := &subscriber{conn: conn, send: make(chan []byte, sendQueue)}

	f.mu.Lock()
	f.subscribers[sub] = struct{}{}
	if f.last != nil {
		sub.send <- f.last
	}
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.writer(sub)
	}()

	// Reads only serve to notice the client going away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Status subscriber error: %v", err)
			}
			break
		}
	}

	f.remove(sub)
}

func (f *Feed) writer(sub *subscriber) {
	defer sub.conn.Close()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-sub.send:
			if !ok {
				sub.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
				return
			}
			sub.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Error writing status: %v", err)
				f.remove(sub)
				return
			}
		case <-ticker.C:
			if err := sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				f.remove(sub)
				return
			}
		}
	}
}

func (f *Feed) remove(sub *subscriber) {
	f.mu.Lock()
	_, ok := f.subscribers[sub]
	delete(f.subscribers, sub)
	f.mu.Unlock()

	if ok {
		sub.close()
	}
}

func (f *Feed) closeAll() {
	f.mu.Lock()
	subs := f.subscribers
	f.subscribers = make(map[*subscriber]struct{})
	f.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
}
