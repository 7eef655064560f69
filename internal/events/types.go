package events

import (
	"time"
)

// EventType identifies the kind of event pushed to subscribers.
type EventType string

const (
	// EventTypeDetection is emitted after classification of a request.
	EventTypeDetection EventType = "detection"
	// EventTypeRoute is emitted when a routed request reaches a terminal state.
	EventTypeRoute EventType = "route"
	// EventTypeSystem carries gateway health and counters.
	EventTypeSystem EventType = "system"
	// EventTypeConnection announces subscriber connects and disconnects.
	EventTypeConnection EventType = "connection"
)

// Event is the envelope sent to connected clients.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// DetectionEvent summarizes a classification pass. It carries dataType names
// and counts only; matched values never leave the request scope.
type DetectionEvent struct {
	RequestID   string   `json:"request_id"`
	DataTypes   []string `json:"data_types"`
	MatchCount  int      `json:"match_count"`
	Showstopper bool     `json:"showstopper"`
}

// RouteEvent summarizes the terminal outcome of a routed request.
type RouteEvent struct {
	RequestID         string  `json:"request_id"`
	Decision          string  `json:"decision"`
	State             string  `json:"state"`
	Provider          string  `json:"provider,omitempty"`
	SanitizationLevel string  `json:"sanitization_level,omitempty"`
	RedactionsApplied int     `json:"redactions_applied"`
	PseudonymsUsed    int     `json:"pseudonyms_used"`
	DurationMS        float64 `json:"duration_ms"`
}

// SystemEvent carries gateway status information.
type SystemEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	ActivePatterns   int    `json:"active_patterns"`
	DictionarySize   int    `json:"dictionary_size"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent announces a subscriber joining or leaving.
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
}

// ClientMessage is a message received from a subscriber.
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// SubscriptionRequest narrows the event types a subscriber receives.
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}
