package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeSecurityWarning is sent when a WARNING rule blocks a value
	EventTypeSecurityWarning EventType = "security_warning"
	// EventTypeConfigError is sent when a masking option is rejected
	EventTypeConfigError EventType = "config_error"
	// EventTypeRenderError is sent when a message could not be masked
	EventTypeRenderError EventType = "render_error"
	// EventTypeRulesReloaded is sent after a new active set is published
	EventTypeRulesReloaded EventType = "rules_reloaded"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// SignalEvent carries a masking signal. It names the rule involved, never
// the matched text.
type SignalEvent struct {
	Expression string `json:"expression,omitempty"`
	Strategy   string `json:"strategy,omitempty"`
	Count      int    `json:"count,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// RulesReloadedEvent describes a published active set
type RulesReloadedEvent struct {
	Source string `json:"source"` // file, api
	Rules  int    `json:"rules"`
	Errors int    `json:"errors"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest narrows the events a client receives
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}
