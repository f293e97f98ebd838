package models

import "time"

// ControlEvent is published on the control topic to ask running instances to act,
// e.g. reload the subscriber catalog.
type ControlEvent struct {
	EventType   string                 `json:"event_type"`
	ServiceType string                 `json:"service_type"`
	Action      string                 `json:"action"`
	Timestamp   time.Time              `json:"timestamp"`
	ChangedBy   string                 `json:"changed_by,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

const (
	EventTypeCatalogRefresh = "catalog_refresh"
)

const (
	ActionReload = "reload"
)

const (
	ServiceTypeCatalog = "catalog"
)
