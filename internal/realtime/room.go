// Package realtime holds the websocket side of seat synchronisation: room
// membership, frame delivery and cross-instance fan-out.
package realtime

import (
	"context"
	"sort"
	"sync"

	"github.com/iliyamo/cinema-seat-sync/internal/metrics"
)

// Member is a live connection that can receive frames.
type Member interface {
	ID() string
	// Send queues msg without blocking and reports whether it was accepted.
	Send(msg Message) bool
}

// Broadcaster delivers a frame to every member of a show's room except
// exclude (empty excludes no one).  Delivery is fire and forget.
type Broadcaster interface {
	Broadcast(ctx context.Context, showID uint64, msg Message, exclude string)
}

// RoomManager tracks which show each connection is viewing.  A connection
// belongs to at most one room.
type RoomManager struct {
	mu       sync.RWMutex
	rooms    map[uint64]map[string]Member
	memberOf map[string]uint64
	metrics  *metrics.Metrics
}

func NewRoomManager(m *metrics.Metrics) *RoomManager {
	if m == nil {
		m = metrics.Discard()
	}
	return &RoomManager{
		rooms:    make(map[uint64]map[string]Member),
		memberOf: make(map[string]uint64),
		metrics:  m,
	}
}

// Join moves m into showID's room.  prev is the room it left, if any.
func (r *RoomManager) Join(m Member, showID uint64) (prev uint64, moved bool) {
	id := m.ID()
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.memberOf[id]; ok {
		if cur == showID {
			r.rooms[showID][id] = m
			return 0, false
		}
		r.removeLocked(id, cur)
		prev, moved = cur, true
	}
	room, ok := r.rooms[showID]
	if !ok {
		room = make(map[string]Member)
		r.rooms[showID] = room
	}
	room[id] = m
	r.memberOf[id] = showID
	r.metrics.RoomMembers.Inc()
	return prev, moved
}

// Leave removes the connection from its room.  Calling it twice is harmless.
func (r *RoomManager) Leave(id string) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	showID, ok := r.memberOf[id]
	if !ok {
		return 0, false
	}
	r.removeLocked(id, showID)
	return showID, true
}

func (r *RoomManager) removeLocked(id string, showID uint64) {
	delete(r.memberOf, id)
	if room, ok := r.rooms[showID]; ok {
		delete(room, id)
		if len(room) == 0 {
			delete(r.rooms, showID)
		}
	}
	r.metrics.RoomMembers.Dec()
}

// RoomOf returns the show the connection is currently viewing.
func (r *RoomManager) RoomOf(id string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	showID, ok := r.memberOf[id]
	return showID, ok
}

// Members lists the connection ids in a room, sorted.
func (r *RoomManager) Members(showID uint64) []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.rooms[showID]))
	for id := range r.rooms[showID] {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Deliver hands msg to the local members of the room and returns how many
// accepted it.
func (r *RoomManager) Deliver(showID uint64, msg Message, exclude string) int {
	r.mu.RLock()
	targets := make([]Member, 0, len(r.rooms[showID]))
	for id, m := range r.rooms[showID] {
		if exclude != "" && id == exclude {
			continue
		}
		targets = append(targets, m)
	}
	r.mu.RUnlock()

	n := 0
	for _, m := range targets {
		if m.Send(msg) {
			n++
		}
	}
	return n
}

// Broadcast implements Broadcaster for a single instance.
func (r *RoomManager) Broadcast(_ context.Context, showID uint64, msg Message, exclude string) {
	r.metrics.Broadcasts.WithLabelValues(msg.Event).Inc()
	r.Deliver(showID, msg, exclude)
}
