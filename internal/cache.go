package internal

import (
	"encoding/json"

	"golang.org/x/exp/slices"
)

// Cache keeps the last payload accepted from the controller so that new
// connections can be caught up.
type Cache struct {
	last json.RawMessage
}

func (c *Cache) Set(payload json.RawMessage) {
	c.last = slices.Clone(payload)
}

func (c *Cache) Get() (json.RawMessage, bool) {
	if c.last == nil {
		return nil, false
	}

	return slices.Clone(c.last), true
}
