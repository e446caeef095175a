package domain

import (
	"fmt"
	"time"
)

// Logical collection names. The store adapter prefixes them with the app namespace.
const (
	CollectionWorkers       = "workers"
	CollectionJobs          = "jobs"
	CollectionNotifications = "notifications"
)

// Job statuses. completed is terminal.
const (
	JobStatusPending   = "pending"
	JobStatusCompleted = "completed"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleWorker Role = "worker"
)

// OwnerActorID identifies the owner in audit events and tokens.
const OwnerActorID = "owner"

type Worker struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Public returns a copy without the password.
func (w Worker) Public() Worker {
	w.Password = ""
	return w
}

type Job struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Reward         float64   `json:"reward"`
	AssignedToID   string    `json:"assignedToId"`
	AssignedToName string    `json:"assignedToName"`
	Status         string    `json:"status" enum:"pending,completed"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Pending reports whether the job can still be completed.
func (j Job) Pending() bool { return j.Status == JobStatusPending }

type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Viewer is the resolved role and identity of one session. Worker is nil for the owner.
type Viewer struct {
	Role   Role    `json:"role"`
	Worker *Worker `json:"worker,omitempty"`
}

func OwnerViewer() Viewer { return Viewer{Role: RoleOwner} }

func WorkerViewer(w Worker) Viewer { return Viewer{Role: RoleWorker, Worker: &w} }

func (v Viewer) IsOwner() bool { return v.Role == RoleOwner }

func (v Viewer) IsWorker() bool { return v.Role == RoleWorker && v.Worker != nil }

// ActorID returns the identity recorded on audit events.
func (v Viewer) ActorID() string {
	if v.IsWorker() {
		return v.Worker.ID
	}
	if v.IsOwner() {
		return OwnerActorID
	}
	return ""
}

// Event is an audit log entry.
type Event struct {
	ID         int64  `json:"id" db:"id"`
	TS         string `json:"ts" db:"ts" format:"date-time"`
	Type       string `json:"type" db:"type"`
	EntityKind string `json:"entity_kind" db:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty" db:"entity_id"`
	ActorID    string `json:"actor_id" db:"actor_id"`
	Payload    string `json:"payload_json" db:"payload_json"`
}

// ValidationError reports missing or malformed input for a named field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s is required", e.Field)
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}
