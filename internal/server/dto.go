package server

import (
	"encoding/json"
	"time"

	"jobline/internal/domain"
	"jobline/internal/projection"
)

// Request payloads

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateWorkerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateJobRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Reward      float64 `json:"reward" minimum:"0"`
	AssigneeID  string  `json:"assignee_id"`
}

// Response payloads

type WorkerResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ViewerResponse struct {
	Role        string          `json:"role" enum:"owner,worker"`
	ActorID     string          `json:"actor_id"`
	Worker      *WorkerResponse `json:"worker,omitempty"`
	Permissions []string        `json:"permissions,omitempty"`
}

type LoginResponse struct {
	Token     string         `json:"token"`
	SessionID string         `json:"session_id"`
	ExpiresAt time.Time      `json:"expires_at"`
	Viewer    ViewerResponse `json:"viewer"`
}

type JobResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Reward         float64   `json:"reward"`
	AssignedToID   string    `json:"assigned_to_id"`
	AssignedToName string    `json:"assigned_to_name"`
	Status         string    `json:"status" enum:"pending,completed"`
	CreatedAt      time.Time `json:"created_at"`
}

type NotificationResponse struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type CompleteJobResponse struct {
	Job          JobResponse          `json:"job"`
	Notification NotificationResponse `json:"notification"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type workerList struct {
	Items []WorkerResponse `json:"items"`
}

type jobList struct {
	Items []JobResponse `json:"items"`
}

type notificationList struct {
	Items []NotificationResponse `json:"items"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// ViewMessage is one server-sent view update.
type ViewMessage struct {
	Seq           uint64                 `json:"seq"`
	Viewer        ViewerResponse         `json:"viewer"`
	Workers       []WorkerResponse       `json:"workers,omitempty"`
	Jobs          []JobResponse          `json:"jobs"`
	Notifications []NotificationResponse `json:"notifications,omitempty"`
	UnreadCount   int                    `json:"unread_count"`
}

// Conversion helpers

func workerResponse(w domain.Worker) WorkerResponse {
	return WorkerResponse{ID: w.ID, Name: w.Name, Email: w.Email}
}

func viewerResponse(v domain.Viewer, perms []string) ViewerResponse {
	res := ViewerResponse{Role: string(v.Role), ActorID: v.ActorID(), Permissions: perms}
	if v.Worker != nil {
		w := workerResponse(*v.Worker)
		res.Worker = &w
	}
	return res
}

func jobResponse(j domain.Job) JobResponse {
	return JobResponse{
		ID:             j.ID,
		Title:          j.Title,
		Description:    j.Description,
		Reward:         j.Reward,
		AssignedToID:   j.AssignedToID,
		AssignedToName: j.AssignedToName,
		Status:         j.Status,
		CreatedAt:      j.CreatedAt,
	}
}

func notificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{ID: n.ID, Message: n.Message, Read: n.Read, CreatedAt: n.CreatedAt}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func viewMessage(v projection.View) ViewMessage {
	msg := ViewMessage{
		Seq:         v.Seq,
		Viewer:      viewerResponse(v.Viewer, nil),
		Jobs:        make([]JobResponse, 0, len(v.Jobs)),
		UnreadCount: v.UnreadCount(),
	}
	for _, w := range v.Workers {
		msg.Workers = append(msg.Workers, workerResponse(w))
	}
	for _, j := range v.Jobs {
		msg.Jobs = append(msg.Jobs, jobResponse(j))
	}
	for _, n := range v.Notifications {
		msg.Notifications = append(msg.Notifications, notificationResponse(n))
	}
	return msg
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}
