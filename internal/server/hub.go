package server

import (
	"sync"

	"github.com/polymirror/polymirror/internal/model"
)

type subscription struct {
	ch chan model.TradeRecord
}

// hub fans out new trade records to websocket subscribers. Sends never
// block; a slow subscriber just misses updates.
type hub struct {
	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*subscription]struct{})}
}

func (h *hub) Subscribe(buffer int) *subscription {
	sub := &subscription{ch: make(chan model.TradeRecord, buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *hub) Unsubscribe(sub *subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	close(sub.ch)
}

func (h *hub) Broadcast(rec model.TradeRecord) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- rec:
		default:
		}
	}
}
