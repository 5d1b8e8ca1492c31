package auth

import (
	"fmt"
	"strings"
)

// Role is the closed set of user roles. Higher values carry more capability.
type Role int

const (
	RolePublic Role = iota
	RoleAffiliate
	RolePartner
	RolePartnerManager
	RolePartnerAdmin
	RoleAdmin
	RoleSuperAdmin
)

var roleNames = map[Role]string{
	RolePublic:         "Public",
	RoleAffiliate:      "Affiliate",
	RolePartner:        "Partner",
	RolePartnerManager: "PartnerManager",
	RolePartnerAdmin:   "PartnerAdmin",
	RoleAdmin:          "Admin",
	RoleSuperAdmin:     "SuperAdmin",
}

// AllRoles lists every role from highest to lowest capability.
func AllRoles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RolePartnerAdmin, RolePartnerManager, RolePartner, RoleAffiliate, RolePublic}
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole accepts the canonical role names case-insensitively.
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return r, nil
		}
	}
	return RolePublic, fmt.Errorf("unknown role %q", s)
}

func (r Role) MarshalText() ([]byte, error) {
	if _, ok := roleNames[r]; !ok {
		return nil, fmt.Errorf("unknown role %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// AtLeast reports whether r carries at least the capability of other.
func (r Role) AtLeast(other Role) bool {
	return r >= other
}

// IsNWHC reports membership in the administrator set that sees every field.
func (r Role) IsNWHC() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// IsCreator reports whether the role may create events.
func (r Role) IsCreator() bool {
	return r != RoleAffiliate && r != RolePublic
}

// IsUpdater reports whether the role may update records it has been granted.
// SuperAdmin is elevated through IsNWHC instead.
func (r Role) IsUpdater() bool {
	return r != RoleSuperAdmin && r != RolePublic
}

// IsOverride reports whether the role may complete or re-open events it does not own.
func (r Role) IsOverride() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RolePartnerAdmin, RolePartnerManager:
		return true
	}
	return false
}
