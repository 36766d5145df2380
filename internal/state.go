package internal

import (
	"golang.org/x/exp/slog"
)

func NewState() *State {
	return &State{Connections: make(map[string]*Connection)}
}

func (s *State) Add(id string, conn *Connection) {
	s.Lock.Lock()
	defer s.Lock.Unlock()
	s.Connections[id] = conn
}

func (s *State) Remove(id string) {
	s.Lock.Lock()
	defer s.Lock.Unlock()
	delete(s.Connections, id)
}

func (s *State) Has(id string) bool {
	s.Lock.RLock()
	defer s.Lock.RUnlock()
	_, ok := s.Connections[id]
	return ok
}

// Drop asks the connection's write loop to close the socket.
func (s *State) Drop(id string) bool {
	s.Lock.RLock()
	defer s.Lock.RUnlock()

	conn, ok := s.Connections[id]
	if !ok {
		return false
	}

	select {
	case conn.Messages <- Message{Drop: true}:
	default:
		conn.Cancel()
	}

	return true
}

// Send enqueues msg on every listed connection without blocking. A connection whose
// buffer is full has fallen behind and is cancelled; its disconnect reaches the hub
// through the normal lifecycle.
func (s *State) Send(ids []string, msg Message) {
	s.Lock.RLock()
	defer s.Lock.RUnlock()

	for _, id := range ids {
		conn, ok := s.Connections[id]
		if !ok {
			continue
		}

		select {
		case conn.Messages <- msg:
		default:
			droppedSendsCounter.Inc()
			slog.Warn("send buffer full, dropping connection", slog.String("id", id))
			conn.Cancel()
		}
	}
}
