// Package access holds the authorization rules for playlists and users.
// Everything here is a pure function over already-loaded state; callers
// translate a false result into an HTTP error at the boundary.
package access

import "crypto/subtle"

// Role is ordered by privilege. The numeric rank makes "at least admin"
// checks a single comparison.
type Role int

const (
	RoleRegular Role = iota
	RoleAdmin
	RoleSuperAdmin
)

func ParseRole(s string) (Role, bool) {
	switch s {
	case "regular":
		return RoleRegular, true
	case "admin":
		return RoleAdmin, true
	case "superadmin":
		return RoleSuperAdmin, true
	}
	return RoleRegular, false
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleSuperAdmin:
		return "superadmin"
	default:
		return "regular"
	}
}

func RoleAtLeast(actor, required Role) bool {
	return actor >= required
}

// CanModifyUser reports whether actor may update target's record.
// Admins may touch regulars and other admins; superadmin records are only
// touched by superadmins.
func CanModifyUser(actor, target Role) bool {
	if actor < RoleAdmin {
		return false
	}
	if target == RoleSuperAdmin {
		return actor == RoleSuperAdmin
	}
	return true
}

// CanDeleteUser reports whether actor may delete target's record.
// Superadmins are never deletable through the API; admins are deletable
// only by a superadmin.
func CanDeleteUser(actor, target Role) bool {
	if actor < RoleAdmin {
		return false
	}
	switch target {
	case RoleSuperAdmin:
		return false
	case RoleAdmin:
		return actor == RoleSuperAdmin
	default:
		return true
	}
}

// CanAssignRole reports whether actor may hand out the given role.
// Only superadmins mint admins or other superadmins.
func CanAssignRole(actor, assigned Role) bool {
	if actor < RoleAdmin {
		return false
	}
	if assigned >= RoleAdmin {
		return actor == RoleSuperAdmin
	}
	return true
}

// CanViewPlaylist gates playback access. Public playlists are open;
// private ones require the stored access token.
func CanViewPlaylist(isPublic bool, accessToken, supplied string) bool {
	if isPublic {
		return true
	}
	return tokensEqual(accessToken, supplied)
}

// CanUpload gates guest submissions against the playlist's upload token.
func CanUpload(allowUploads bool, uploadToken, supplied string) bool {
	if !allowUploads {
		return false
	}
	return tokensEqual(uploadToken, supplied)
}

func tokensEqual(stored, supplied string) bool {
	if stored == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
