package internal

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Registry maps live connection ids to their role. It holds no policy; roles are
// written by the Arbiter only.
type Registry struct {
	roles map[string]Role
}

func NewRegistry() *Registry {
	return &Registry{roles: make(map[string]Role)}
}

func (r *Registry) Register(id string) error {
	if _, ok := r.roles[id]; ok {
		return ErrDuplicateConnection
	}

	r.roles[id] = RoleSubscriber
	return nil
}

// Unregister removes id and returns the role it held.
func (r *Registry) Unregister(id string) (Role, bool) {
	role, ok := r.roles[id]
	if !ok {
		return "", false
	}

	delete(r.roles, id)
	return role, true
}

func (r *Registry) Lookup(id string) (Role, bool) {
	role, ok := r.roles[id]
	return role, ok
}

func (r *Registry) setRole(id string, role Role) {
	if _, ok := r.roles[id]; ok {
		r.roles[id] = role
	}
}

// IDs returns every live connection id in sorted order.
func (r *Registry) IDs() []string {
	ids := maps.Keys(r.roles)
	slices.Sort(ids)
	return ids
}

func (r *Registry) Len() int {
	return len(r.roles)
}
