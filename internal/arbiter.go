package internal

import (
	"golang.org/x/exp/slices"
)

// Arbiter owns the controller queue. The head of the queue is the active controller,
// every other member is waiting. A member's position is its index in the queue and
// is never stored anywhere else.
type Arbiter struct {
	registry *Registry
	queue    []string
}

func NewArbiter(registry *Registry) *Arbiter {
	return &Arbiter{registry: registry}
}

// Request appends id to the queue and returns the number of ids ahead of it.
// Zero means id is now the active controller.
func (a *Arbiter) Request(id string) (int, error) {
	if _, ok := a.registry.Lookup(id); !ok {
		return 0, ErrUnknownConnection
	}

	if slices.Contains(a.queue, id) {
		return 0, ErrDuplicateRoleRequest
	}

	a.queue = append(a.queue, id)
	position := len(a.queue) - 1

	if position == 0 {
		a.registry.setRole(id, RoleActiveController)
	} else {
		a.registry.setRole(id, RoleWaitingController)
	}

	return position, nil
}

// Remove drops id from the queue and returns the index it occupied. The new head,
// if any, is promoted before Remove returns.
func (a *Arbiter) Remove(id string) (int, bool) {
	idx := slices.Index(a.queue, id)
	if idx < 0 {
		return 0, false
	}

	a.queue = slices.Delete(a.queue, idx, idx+1)
	a.registry.setRole(id, RoleSubscriber)

	if idx == 0 && len(a.queue) > 0 {
		a.registry.setRole(a.queue[0], RoleActiveController)
	}

	return idx, true
}

func (a *Arbiter) Head() (string, bool) {
	if len(a.queue) == 0 {
		return "", false
	}

	return a.queue[0], true
}

func (a *Arbiter) IsActive(id string) bool {
	head, ok := a.Head()
	return ok && head == id
}

// Position returns the number of ids ahead of id, or -1 if id is not queued.
func (a *Arbiter) Position(id string) int {
	return slices.Index(a.queue, id)
}

// Waiting returns the queue without its head.
func (a *Arbiter) Waiting() []string {
	if len(a.queue) < 2 {
		return nil
	}

	return slices.Clone(a.queue[1:])
}

func (a *Arbiter) Queue() []string {
	return slices.Clone(a.queue)
}

func (a *Arbiter) Len() int {
	return len(a.queue)
}
