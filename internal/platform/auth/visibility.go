package auth

import "github.com/google/uuid"

// View selects which fields of a record a caller may see.
type View int

const (
	ViewPublic View = iota
	ViewCollaborator
	ViewOwner
	ViewAdmin
)

func (v View) String() string {
	switch v {
	case ViewCollaborator:
		return "collaborator"
	case ViewOwner:
		return "owner"
	case ViewAdmin:
		return "admin"
	}
	return "public"
}

type Action int

const (
	ActionList Action = iota
	ActionRead
	ActionCreate
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	return [...]string{"list", "read", "create", "update", "delete"}[a]
}

// PermissionSource explains why a caller has more than public access.
type PermissionSource string

const (
	SourceNone         PermissionSource = ""
	SourceUser         PermissionSource = "user"
	SourceOrganization PermissionSource = "organization"
	SourceCircle       PermissionSource = "circle"
)

// Record is the authorization-relevant shape of an event or any record that
// inherits an event's access rules.
type Record struct {
	OwnerID        uuid.UUID
	OrganizationID uuid.UUID
	ReadCircle     []uuid.UUID
	WriteCircle    []uuid.UUID
	Public         bool
}

func (r Record) inRead(id uuid.UUID) bool  { return contains(r.ReadCircle, id) }
func (r Record) inWrite(id uuid.UUID) bool { return contains(r.WriteCircle, id) }

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Decision is the resolver output for one (principal, record, action).
type Decision struct {
	View    View
	Allowed bool
	Source  PermissionSource
}

type grant struct {
	read, update, delete bool
}

type rule struct {
	name    string
	matches func(p *Principal, r Record) bool
	view    View
	source  PermissionSource
	// publicRead means read is allowed only when the record is public.
	publicRead bool
	grant      grant
}

func sameOrg(p *Principal, r Record) bool {
	return p.OrganizationID != uuid.Nil && p.OrganizationID == r.OrganizationID
}

// rules is evaluated top to bottom; the first match decides.
var rules = []rule{
	{
		name:       "anonymous",
		matches:    func(p *Principal, _ Record) bool { return p == nil },
		view:       ViewPublic,
		publicRead: true,
	},
	{
		name:    "nwhc",
		matches: func(p *Principal, _ Record) bool { return p.Role.IsNWHC() },
		view:    ViewAdmin,
		grant:   grant{read: true, update: true, delete: true},
	},
	{
		name:    "owner",
		matches: func(p *Principal, r Record) bool { return p.UserID == r.OwnerID },
		view:    ViewOwner,
		source:  SourceUser,
		grant:   grant{read: true, update: true, delete: true},
	},
	{
		name: "org-manager",
		matches: func(p *Principal, r Record) bool {
			return sameOrg(p, r) && (p.Role == RolePartnerManager || p.Role == RolePartnerAdmin)
		},
		view:   ViewOwner,
		source: SourceOrganization,
		grant:  grant{read: true, update: true, delete: true},
	},
	{
		name:    "write-circle",
		matches: func(p *Principal, r Record) bool { return r.inWrite(p.UserID) },
		view:    ViewCollaborator,
		source:  SourceCircle,
		grant:   grant{read: true, update: true},
	},
	{
		name: "org-updater",
		matches: func(p *Principal, r Record) bool {
			return sameOrg(p, r) && p.Role.IsUpdater() && p.Role < RolePartnerManager
		},
		view:   ViewCollaborator,
		source: SourceOrganization,
		grant:  grant{read: true, update: true},
	},
	{
		name:    "read-circle",
		matches: func(p *Principal, r Record) bool { return r.inRead(p.UserID) },
		view:    ViewCollaborator,
		source:  SourceCircle,
		grant:   grant{read: true},
	},
	{
		name:       "public",
		matches:    func(*Principal, Record) bool { return true },
		view:       ViewPublic,
		publicRead: true,
	},
}

func match(p *Principal, r Record) rule {
	for _, ru := range rules {
		if ru.matches(p, r) {
			return ru
		}
	}
	return rules[len(rules)-1]
}

// Resolve decides the view and permission for p acting on r.
// A nil principal is anonymous.
func Resolve(p *Principal, r Record, action Action) Decision {
	switch action {
	case ActionList:
		if p != nil && p.Role.IsNWHC() {
			return Decision{View: ViewAdmin, Allowed: true}
		}
		return Decision{View: ViewPublic, Allowed: true}
	case ActionCreate:
		if p == nil || !p.Role.IsCreator() {
			return Decision{View: ViewPublic}
		}
		if p.Role.IsNWHC() {
			return Decision{View: ViewAdmin, Allowed: true}
		}
		return Decision{View: ViewOwner, Allowed: true, Source: SourceUser}
	}

	ru := match(p, r)
	d := Decision{View: ru.view, Source: ru.source}
	switch action {
	case ActionRead:
		d.Allowed = ru.grant.read || (ru.publicRead && r.Public)
	case ActionUpdate:
		d.Allowed = ru.grant.update
	case ActionDelete:
		d.Allowed = ru.grant.delete
	}
	return d
}

// Source returns the permission source for p on r without an action.
func Source(p *Principal, r Record) PermissionSource {
	return match(p, r).source
}

// Scope is the row-level filter applied to list queries.
type Scope int

const (
	ScopePublic Scope = iota
	ScopeMine
	ScopeAll
)

// ListScope picks the search scope. mine requests the caller's own,
// organization and collaborator records.
func ListScope(p *Principal, mine bool) Scope {
	switch {
	case p == nil:
		return ScopePublic
	case mine:
		return ScopeMine
	case p.Role.IsNWHC():
		return ScopeAll
	}
	return ScopePublic
}
