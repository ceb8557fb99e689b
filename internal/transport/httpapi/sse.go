package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sseClient is the writable side of one open SSE connection plus its
// keepalive timer.
type sseClient struct {
	id      string
	w       http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
}

// sseBroadcaster owns the HTTP Adapter's SSE client set exclusively: it is
// mutated on connect/disconnect and iterated on broadcast under the same
// consistency requirement as the event bus subscription table.
type sseBroadcaster struct {
	mu      sync.RWMutex
	clients map[string]*sseClient
}

func newSSEBroadcaster() *sseBroadcaster {
	return &sseBroadcaster{clients: make(map[string]*sseClient)}
}

// register adds w to the broadcast set and starts its 30-second keepalive
// comment ping. The returned function removes the client and must be
// called exactly once, on disconnect or server shutdown.
func (b *sseBroadcaster) register(w http.ResponseWriter, keepalive time.Duration) (remove func(), ok bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	client := &sseClient{id: uuid.NewString(), w: w, flusher: flusher, done: make(chan struct{})}

	b.mu.Lock()
	b.clients[client.id] = client
	b.mu.Unlock()

	ticker := time.NewTicker(keepalive)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-client.done:
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(client.w, ": ping\n\n"); err != nil {
					b.remove(client.id)
					return
				}
				client.flusher.Flush()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(client.done)
			b.remove(client.id)
		})
	}, true
}

func (b *sseBroadcaster) remove(id string) {
	b.mu.Lock()
	delete(b.clients, id)
	b.mu.Unlock()
}

// broadcast writes "event: <type>\ndata: <json>\n\n" to every registered
// client, best-effort: write errors drop that client silently.
func (b *sseBroadcaster) broadcast(eventType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	frame := fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, raw)

	b.mu.RLock()
	clients := make([]*sseClient, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		if _, err := fmt.Fprint(c.w, frame); err != nil {
			b.remove(c.id)
			continue
		}
		c.flusher.Flush()
	}
}

// closeAll ends every registered SSE client, used during graceful shutdown.
func (b *sseBroadcaster) closeAll() {
	b.mu.Lock()
	clients := make([]*sseClient, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.clients = make(map[string]*sseClient)
	b.mu.Unlock()

	for _, c := range clients {
		close(c.done)
	}
}

func (b *sseBroadcaster) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
