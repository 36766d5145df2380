package internal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var (
	ErrDuplicateConnection  = errors.New("connection already registered")
	ErrUnknownConnection    = errors.New("unknown connection")
	ErrDuplicateRoleRequest = errors.New("already waiting for the controller role")
	ErrNotQueued            = errors.New("not waiting for the controller role")
	ErrUnauthorizedUpdate   = errors.New("only the active controller can update data")
	ErrMalformedEvent       = errors.New("malformed event")
	ErrHubClosed            = errors.New("hub closed")
)

type Role string

const (
	RoleSubscriber        Role = "subscriber"
	RoleWaitingController Role = "waiting_controller"
	RoleActiveController  Role = "controller"
)

// Outbound event names.
const (
	EventControllerAssigned = "controller_assigned"
	EventRoleAssigned       = "role_assigned"
	EventWarning            = "warning"
	EventError              = "error"
	EventDataUpdate         = "data_update"
	EventGame               = "game"
)

// Frame is the JSON envelope exchanged with clients in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ControllerAssigned struct {
	ControllerID *string `json:"controller_id"`
}

type RoleAssigned struct {
	Role Role `json:"role"`
}

type Warning struct {
	Message  string `json:"message"`
	Position int    `json:"position"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

type Message struct {
	Drop   bool
	Buffer []byte
}

type Connection struct {
	Messages chan Message
	Cancel   context.CancelFunc
}

// State is the transport side connection table. The hub never touches it directly,
// it only sees it through Sender.
type State struct {
	Lock        sync.RWMutex
	Connections map[string]*Connection
}

type ControlEventType string

const (
	ControlEventDrop    ControlEventType = "drop"
	ControlEventRelease ControlEventType = "release"
)

// ControlEvent arrives on the instance's redis channel.
type ControlEvent struct {
	Type ControlEventType `json:"type"`
	ID   string           `json:"id"`
}
