package audit

import (
	"encoding/json"
	"time"
)

// EventType names the mutation an audit event records
type EventType string

const (
	EventTypeModuleCreate      EventType = "module.create"
	EventTypeDependencyAdd     EventType = "dependency.add"
	EventTypeDependencyRemove  EventType = "dependency.remove"
	EventTypeConflictResolve   EventType = "conflict.resolve"
	EventTypeVersionPublish    EventType = "version.publish"
	EventTypePlanCreate        EventType = "plan.create"
	EventTypePlanApprove       EventType = "plan.approve"
	EventTypePlanReject        EventType = "plan.reject"
	EventTypePlanExecute       EventType = "plan.execute"
	EventTypeRollbackExecute   EventType = "rollback.execute"
	EventTypeRollbackPointSave EventType = "rollback_point.create"
	EventTypeRollbackPointExp  EventType = "rollback_point.expire"
	EventTypeManifestApply     EventType = "manifest.apply"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess  EventStatus = "success"
	EventStatusFailure  EventStatus = "failure"
	EventStatusRejected EventStatus = "rejected"
)

// ResourceType represents the kind of record a mutation touched
type ResourceType string

const (
	ResourceTypeModule        ResourceType = "module"
	ResourceTypeDependency    ResourceType = "dependency"
	ResourceTypeVersion       ResourceType = "version"
	ResourceTypePlan          ResourceType = "plan"
	ResourceTypeRollbackPoint ResourceType = "rollback_point"
	ResourceTypeManifest      ResourceType = "manifest"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	Actor     string `json:"actor,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Revision is the store revision after a successful commit
	Revision uint64 `json:"revision,omitempty"`

	Reason       string                 `json:"reason,omitempty"`
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	Actor        string
	EventTypes   []EventType
	Status       *EventStatus
	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}
