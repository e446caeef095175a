package auth

import (
	"fmt"
	"sort"

	"jobline/internal/config"
	"jobline/internal/domain"
)

const (
	PermWorkerCreate     = "worker.create"
	PermWorkerList       = "worker.list"
	PermJobCreate        = "job.create"
	PermJobList          = "job.list"
	PermJobComplete      = "job.complete"
	PermNotificationRead = "notification.read"
	PermNotificationAck  = "notification.ack"
	PermEventsRead       = "events.read"
	PermViewStream       = "view.stream"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
	Reason     string
}

func (e ForbiddenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("permission %s denied: %s", e.Permission, e.Reason)
	}
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Policy maps roles to their granted permissions.
type Policy struct {
	roles map[domain.Role]map[string]struct{}
}

// NewPolicy builds a policy from the rbac section of the config.
func NewPolicy(cfg *config.Config) Policy {
	p := Policy{roles: make(map[domain.Role]map[string]struct{})}
	if cfg == nil {
		return p
	}
	for roleID, role := range cfg.RBAC.Roles {
		set := make(map[string]struct{}, len(role.Permissions))
		for _, perm := range role.Permissions {
			set[perm] = struct{}{}
		}
		p.roles[domain.Role(roleID)] = set
	}
	return p
}

func (p Policy) Allowed(role domain.Role, perm string) bool {
	_, ok := p.roles[role][perm]
	return ok
}

// Require returns ForbiddenError unless the viewer's role grants perm. A worker
// viewer without a resolved worker record is never allowed anything.
func (p Policy) Require(v domain.Viewer, perm string) error {
	if v.Role == domain.RoleWorker && v.Worker == nil {
		return ForbiddenError{Permission: perm, Reason: "worker identity missing"}
	}
	if !p.Allowed(v.Role, perm) {
		return ForbiddenError{Permission: perm}
	}
	return nil
}

// Permissions lists the permissions granted to role in sorted order.
func (p Policy) Permissions(role domain.Role) []string {
	out := make([]string, 0, len(p.roles[role]))
	for perm := range p.roles[role] {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out
}
