package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/exp/slog"
)

type OpKind string

const (
	OpConnect     OpKind = "connect"
	OpDisconnect  OpKind = "disconnect"
	OpRequestRole OpKind = "request_controller_role"
	OpReleaseRole OpKind = "release_controller_role"
	OpUpdate      OpKind = "update_data"

	opStatus OpKind = "status"
)

// Op is one event queued for the hub's dispatcher.
type Op struct {
	Kind    OpKind
	ID      string
	Payload json.RawMessage

	reply chan Status
}

// ClientOp maps a frame received from a client to an Op. Lifecycle kinds cannot be
// forged by clients; anything unrecognized is turned into an op the hub rejects.
func ClientOp(id string, frame Frame) Op {
	switch OpKind(frame.Event) {
	case OpRequestRole, OpReleaseRole, OpUpdate:
		return Op{Kind: OpKind(frame.Event), ID: id, Payload: frame.Data}
	default:
		return Op{ID: id}
	}
}

type Status struct {
	ControllerID *string  `json:"controller_id"`
	Queue        []string `json:"queue"`
	Connections  int      `json:"connections"`
	HasState     bool     `json:"has_state"`
}

// Hub is the single owner of the arbitration state. The exported handlers are not
// safe for concurrent use; in the running service they are only ever called from
// the Run goroutine, which is what keeps a single active controller without locks.
type Hub struct {
	logger   *slog.Logger
	registry *Registry
	arbiter  *Arbiter
	cache    *Cache
	router   *Router

	ops  chan Op
	done chan struct{}
}

func NewHub(logger *slog.Logger, sender Sender) *Hub {
	registry := NewRegistry()

	return &Hub{
		logger:   logger,
		registry: registry,
		arbiter:  NewArbiter(registry),
		cache:    &Cache{},
		router:   NewRouter(registry, sender),
		ops:      make(chan Op, 256),
		done:     make(chan struct{}),
	}
}

// Run processes posted ops one at a time until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return
		case op := <-h.ops:
			h.handle(op)
		}
	}
}

// Post queues op for the dispatcher.
func (h *Hub) Post(ctx context.Context, op Op) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}

	select {
	case h.ops <- op:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status takes a snapshot of the arbitration state through the dispatcher.
func (h *Hub) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := h.Post(ctx, Op{Kind: opStatus, reply: reply}); err != nil {
		return Status{}, err
	}

	select {
	case s := <-reply:
		return s, nil
	case <-h.done:
		return Status{}, ErrHubClosed
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (h *Hub) handle(op Op) {
	var err error

	switch op.Kind {
	case OpConnect:
		err = h.Connect(op.ID)
	case OpDisconnect:
		err = h.Disconnect(op.ID)
	case OpRequestRole:
		err = h.RequestRole(op.ID)
	case OpReleaseRole:
		err = h.ReleaseRole(op.ID)
	case OpUpdate:
		err = h.Update(op.ID, op.Payload)
	case opStatus:
		op.reply <- h.snapshot()
		return
	default:
		err = h.Reject(op.ID, ErrMalformedEvent)
	}

	recordSizes(h.registry.Len(), h.arbiter.Len())

	if err != nil {
		h.logger.Warn(
			"event rejected",
			slog.String("id", op.ID),
			slog.String("event", string(op.Kind)),
			slog.String("reason", err.Error()),
		)
	}
}

func (h *Hub) Connect(id string) error {
	if err := h.registry.Register(id); err != nil {
		return err
	}

	head, ok := h.arbiter.Head()
	if err := h.router.Unicast(id, EventControllerAssigned, controllerAssigned(head, ok)); err != nil {
		return err
	}

	if state, ok := h.cache.Get(); ok {
		return h.router.Unicast(id, EventGame, state)
	}

	return nil
}

func (h *Hub) Disconnect(id string) error {
	role, ok := h.registry.Unregister(id)
	if !ok {
		return ErrUnknownConnection
	}

	if role == RoleSubscriber {
		return nil
	}

	idx, ok := h.arbiter.Remove(id)
	if !ok {
		return nil
	}

	return h.afterRemoval(idx)
}

func (h *Hub) RequestRole(id string) error {
	position, err := h.arbiter.Request(id)
	switch {
	case errors.Is(err, ErrDuplicateRoleRequest):
		recordRoleRequest("duplicate")
		if rerr := h.Reject(id, err); rerr != nil {
			return rerr
		}
		return err
	case err != nil:
		return err
	}

	if position > 0 {
		recordRoleRequest("queued")
		return h.warn(id, position)
	}

	recordRoleRequest("granted")
	return h.announceController()
}

func (h *Hub) ReleaseRole(id string) error {
	if _, ok := h.registry.Lookup(id); !ok {
		return ErrUnknownConnection
	}

	idx, ok := h.arbiter.Remove(id)
	if !ok {
		if err := h.Reject(id, ErrNotQueued); err != nil {
			return err
		}
		return ErrNotQueued
	}

	if err := h.router.Unicast(id, EventRoleAssigned, RoleAssigned{Role: RoleSubscriber}); err != nil {
		return err
	}

	return h.afterRemoval(idx)
}

func (h *Hub) Update(id string, payload json.RawMessage) error {
	if _, ok := h.registry.Lookup(id); !ok {
		return ErrUnknownConnection
	}

	if isAbsent(payload) || !json.Valid(payload) {
		recordUpdate("malformed")
		if err := h.Reject(id, ErrMalformedEvent); err != nil {
			return err
		}
		return ErrMalformedEvent
	}

	if !h.arbiter.IsActive(id) {
		recordUpdate("unauthorized")
		if err := h.Reject(id, ErrUnauthorizedUpdate); err != nil {
			return err
		}
		return ErrUnauthorizedUpdate
	}

	h.cache.Set(payload)
	recordUpdate("accepted")

	return h.router.Broadcast(EventDataUpdate, payload, id)
}

// Reject reports err to the offending connection only.
func (h *Hub) Reject(id string, err error) error {
	if _, ok := h.registry.Lookup(id); !ok {
		return ErrUnknownConnection
	}

	return h.router.Unicast(id, EventError, ErrorMessage{Message: err.Error()})
}

// afterRemoval notifies everyone affected by the removal of the queue member that
// sat at idx. Waiters behind it have moved up by one.
func (h *Hub) afterRemoval(idx int) error {
	if idx == 0 {
		if err := h.announceController(); err != nil {
			return err
		}
	}

	queue := h.arbiter.Queue()
	start := idx
	if start < 1 {
		start = 1
	}

	for i := start; i < len(queue); i++ {
		if err := h.warn(queue[i], i); err != nil {
			return err
		}
	}

	return nil
}

func (h *Hub) announceController() error {
	head, ok := h.arbiter.Head()
	if err := h.router.Broadcast(EventControllerAssigned, controllerAssigned(head, ok)); err != nil {
		return err
	}

	if !ok {
		return nil
	}

	promotionsCounter.Inc()
	h.logger.Info("controller assigned", slog.String("id", head))

	return h.router.Unicast(head, EventRoleAssigned, RoleAssigned{Role: RoleActiveController})
}

func (h *Hub) warn(id string, position int) error {
	return h.router.Unicast(id, EventWarning, Warning{
		Message:  fmt.Sprintf("%d controller(s) ahead of you in the queue", position),
		Position: position,
	})
}

func (h *Hub) snapshot() Status {
	head, ok := h.arbiter.Head()
	_, hasState := h.cache.Get()

	queue := h.arbiter.Queue()
	if queue == nil {
		queue = []string{}
	}

	return Status{
		ControllerID: controllerAssigned(head, ok).ControllerID,
		Queue:        queue,
		Connections:  h.registry.Len(),
		HasState:     hasState,
	}
}

// isAbsent reports whether payload carries no state. A literal null counts as absent.
func isAbsent(payload json.RawMessage) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func controllerAssigned(id string, ok bool) ControllerAssigned {
	if !ok {
		return ControllerAssigned{}
	}

	return ControllerAssigned{ControllerID: &id}
}
