package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// Sink receives outbound frames for one connection. Send must not block; it
// reports false when the frame was dropped.
type Sink interface {
	Send(frame []byte) bool
}

type member struct {
	userName string
	sink     Sink
}

// Rooms groups connections by the project they have joined.
type Rooms struct {
	mu     sync.Mutex
	rooms  map[string]map[string]member
	logger *zap.Logger
}

func NewRooms(logger *zap.Logger) *Rooms {
	return &Rooms{rooms: make(map[string]map[string]member), logger: logger}
}

// Join adds a connection to a room and sends the new presence list to every
// member, the joining connection included.
func (r *Rooms) Join(projectID, connID, userName string, sink Sink) {
	r.mu.Lock()
	room, ok := r.rooms[projectID]
	if !ok {
		room = make(map[string]member)
		r.rooms[projectID] = room
	}
	if _, exists := room[connID]; !exists {
		roomMembers.Inc()
	}
	room[connID] = member{userName: userName, sink: sink}
	clients, sinks := snapshot(room)
	r.mu.Unlock()

	r.logger.Debug("room joined", zap.String("project_id", projectID), zap.String("conn_id", connID), zap.Int("members", len(clients)))
	r.publishClients(sinks, clients)
}

// Leave removes a connection from a room and sends the remaining members
// the new presence list.
func (r *Rooms) Leave(projectID, connID string) {
	r.mu.Lock()
	room, ok := r.rooms[projectID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, exists := room[connID]; !exists {
		r.mu.Unlock()
		return
	}
	delete(room, connID)
	roomMembers.Dec()
	if len(room) == 0 {
		delete(r.rooms, projectID)
	}
	clients, sinks := snapshot(room)
	r.mu.Unlock()

	r.logger.Debug("room left", zap.String("project_id", projectID), zap.String("conn_id", connID), zap.Int("members", len(clients)))
	r.publishClients(sinks, clients)
}

// Broadcast sends frame to every member of a room.
func (r *Rooms) Broadcast(projectID string, frame []byte) {
	r.mu.Lock()
	room := r.rooms[projectID]
	sinks := make([]Sink, 0, len(room))
	for _, m := range room {
		sinks = append(sinks, m.sink)
	}
	r.mu.Unlock()

	deliver(sinks, frame)
}

// Clients returns the presence list of a room.
func (r *Rooms) Clients(projectID string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	clients, _ := snapshot(r.rooms[projectID])
	return clients
}

func (r *Rooms) publishClients(sinks []Sink, clients map[string]string) {
	if len(sinks) == 0 {
		return
	}
	frame, err := encodeFrame(ClientsEvent{header: named(KindClients), Clients: clients})
	if err != nil {
		r.logger.Error("encode clients frame", zap.Error(err))
		return
	}
	deliver(sinks, frame)
}

func snapshot(room map[string]member) (map[string]string, []Sink) {
	clients := make(map[string]string, len(room))
	sinks := make([]Sink, 0, len(room))
	for connID, m := range room {
		clients[connID] = m.userName
		sinks = append(sinks, m.sink)
	}
	return clients, sinks
}

func deliver(sinks []Sink, frame []byte) {
	for _, sink := range sinks {
		if !sink.Send(frame) {
			framesDropped.Inc()
		}
	}
}
