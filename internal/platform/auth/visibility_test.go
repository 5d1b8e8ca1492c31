package auth

import (
	"testing"

	"github.com/google/uuid"
)

func TestResolve(t *testing.T) {
	owner := uuid.New()
	org := uuid.New()
	otherOrg := uuid.New()
	reader := uuid.New()
	writer := uuid.New()

	rec := Record{
		OwnerID:        owner,
		OrganizationID: org,
		ReadCircle:     []uuid.UUID{reader},
		WriteCircle:    []uuid.UUID{writer},
		Public:         false,
	}

	user := func(id uuid.UUID, role Role, orgID uuid.UUID) *Principal {
		return &Principal{UserID: id, Role: role, OrganizationID: orgID}
	}

	tests := []struct {
		name   string
		p      *Principal
		view   View
		source PermissionSource
		read   bool
		update bool
		del    bool
	}{
		{"anonymous", nil, ViewPublic, SourceNone, false, false, false},
		{"admin", user(uuid.New(), RoleAdmin, otherOrg), ViewAdmin, SourceNone, true, true, true},
		{"superadmin", user(uuid.New(), RoleSuperAdmin, otherOrg), ViewAdmin, SourceNone, true, true, true},
		{"owner", user(owner, RolePartner, org), ViewOwner, SourceUser, true, true, true},
		{"org partner manager", user(uuid.New(), RolePartnerManager, org), ViewOwner, SourceOrganization, true, true, true},
		{"org partner admin", user(uuid.New(), RolePartnerAdmin, org), ViewOwner, SourceOrganization, true, true, true},
		{"write circle", user(writer, RolePartner, otherOrg), ViewCollaborator, SourceCircle, true, true, false},
		{"org partner", user(uuid.New(), RolePartner, org), ViewCollaborator, SourceOrganization, true, true, false},
		{"org affiliate", user(uuid.New(), RoleAffiliate, org), ViewCollaborator, SourceOrganization, true, true, false},
		{"read circle", user(reader, RoleAffiliate, otherOrg), ViewCollaborator, SourceCircle, true, false, false},
		{"stranger", user(uuid.New(), RolePartnerAdmin, otherOrg), ViewPublic, SourceNone, false, false, false},
		{"org public user", user(uuid.New(), RolePublic, org), ViewPublic, SourceNone, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			read := Resolve(tt.p, rec, ActionRead)
			if read.View != tt.view {
				t.Errorf("view = %s, want %s", read.View, tt.view)
			}
			if read.Source != tt.source {
				t.Errorf("source = %q, want %q", read.Source, tt.source)
			}
			if read.Allowed != tt.read {
				t.Errorf("read = %v, want %v", read.Allowed, tt.read)
			}
			if got := Resolve(tt.p, rec, ActionUpdate).Allowed; got != tt.update {
				t.Errorf("update = %v, want %v", got, tt.update)
			}
			if got := Resolve(tt.p, rec, ActionDelete).Allowed; got != tt.del {
				t.Errorf("delete = %v, want %v", got, tt.del)
			}
		})
	}
}

func TestResolve_PublicRecordReadable(t *testing.T) {
	rec := Record{OwnerID: uuid.New(), OrganizationID: uuid.New(), Public: true}

	d := Resolve(nil, rec, ActionRead)
	if !d.Allowed || d.View != ViewPublic {
		t.Errorf("anonymous read of public record = %+v", d)
	}
	stranger := &Principal{UserID: uuid.New(), Role: RolePartner, OrganizationID: uuid.New()}
	d = Resolve(stranger, rec, ActionRead)
	if !d.Allowed || d.View != ViewPublic {
		t.Errorf("stranger read of public record = %+v", d)
	}
	if Resolve(stranger, rec, ActionUpdate).Allowed {
		t.Error("stranger must not update a public record")
	}
}

func TestResolve_WriteCircleBeatsOrgRank(t *testing.T) {
	org := uuid.New()
	writer := uuid.New()
	rec := Record{OwnerID: uuid.New(), OrganizationID: org, ReadCircle: []uuid.UUID{writer}, WriteCircle: []uuid.UUID{writer}}
	d := Resolve(&Principal{UserID: writer, Role: RoleAffiliate}, rec, ActionUpdate)
	if !d.Allowed || d.View != ViewCollaborator {
		t.Errorf("write-circle member update = %+v", d)
	}
}

func TestResolve_List(t *testing.T) {
	rec := Record{OwnerID: uuid.New()}
	owner := &Principal{UserID: rec.OwnerID, Role: RolePartner}
	if d := Resolve(owner, rec, ActionList); d.View != ViewPublic || !d.Allowed {
		t.Errorf("owner list view = %+v, want public", d)
	}
	admin := &Principal{UserID: uuid.New(), Role: RoleAdmin}
	if d := Resolve(admin, rec, ActionList); d.View != ViewAdmin {
		t.Errorf("admin list view = %s, want admin", d.View)
	}
	if d := Resolve(nil, rec, ActionList); d.View != ViewPublic {
		t.Errorf("anonymous list view = %s, want public", d.View)
	}
}

func TestResolve_Create(t *testing.T) {
	tests := []struct {
		p       *Principal
		allowed bool
		view    View
	}{
		{nil, false, ViewPublic},
		{&Principal{Role: RolePublic}, false, ViewPublic},
		{&Principal{Role: RoleAffiliate}, false, ViewPublic},
		{&Principal{Role: RolePartner}, true, ViewOwner},
		{&Principal{Role: RoleSuperAdmin}, true, ViewAdmin},
	}
	for _, tt := range tests {
		d := Resolve(tt.p, Record{}, ActionCreate)
		if d.Allowed != tt.allowed || d.View != tt.view {
			t.Errorf("create for %+v = %+v", tt.p, d)
		}
	}
}

func TestResolve_NilOrgDoesNotMatch(t *testing.T) {
	rec := Record{OwnerID: uuid.New()}
	p := &Principal{UserID: uuid.New(), Role: RolePartnerAdmin}
	if d := Resolve(p, rec, ActionUpdate); d.Allowed {
		t.Errorf("principal without organization matched a record without organization: %+v", d)
	}
}

func TestListScope(t *testing.T) {
	tests := []struct {
		p    *Principal
		mine bool
		want Scope
	}{
		{nil, false, ScopePublic},
		{nil, true, ScopePublic},
		{&Principal{Role: RoleAdmin}, false, ScopeAll},
		{&Principal{Role: RoleAdmin}, true, ScopeMine},
		{&Principal{Role: RolePartner}, false, ScopePublic},
		{&Principal{Role: RolePartner}, true, ScopeMine},
	}
	for _, tt := range tests {
		if got := ListScope(tt.p, tt.mine); got != tt.want {
			t.Errorf("ListScope(%+v, %v) = %d, want %d", tt.p, tt.mine, got, tt.want)
		}
	}
}

func TestIsOwnerOrOverride(t *testing.T) {
	owner := uuid.New()
	var anon *Principal
	if anon.IsOwnerOrOverride(owner) {
		t.Error("anonymous must not be owner or override")
	}
	if !(&Principal{UserID: owner, Role: RoleAffiliate}).IsOwnerOrOverride(owner) {
		t.Error("owner expected")
	}
	if !(&Principal{UserID: uuid.New(), Role: RolePartnerManager}).IsOwnerOrOverride(owner) {
		t.Error("PartnerManager is an override role")
	}
	if (&Principal{UserID: uuid.New(), Role: RolePartner}).IsOwnerOrOverride(owner) {
		t.Error("Partner is not an override role")
	}
}
