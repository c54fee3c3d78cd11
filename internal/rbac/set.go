package rbac

import (
	"encoding/json"
	"math/bits"
)

// PermissionSet is an immutable set of permissions. The zero value is the empty set.
type PermissionSet struct {
	bits uint64
}

// NewPermissionSet builds a set from the given permissions. Undefined values are ignored
// and duplicates collapse.
func NewPermissionSet(perms ...Permission) PermissionSet {
	var set PermissionSet
	for _, p := range perms {
		if p.Valid() {
			set.bits |= 1 << p
		}
	}
	return set
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	if !p.Valid() {
		return false
	}
	return s.bits&(1<<p) != 0
}

// Len returns the number of permissions in the set.
func (s PermissionSet) Len() int {
	return bits.OnesCount64(s.bits)
}

// IsEmpty reports whether the set holds no permissions.
func (s PermissionSet) IsEmpty() bool {
	return s.bits == 0
}

// Union returns a set holding the permissions of both s and other.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	return PermissionSet{bits: s.bits | other.bits}
}

// Contains reports whether every permission in other is also in s.
func (s PermissionSet) Contains(other PermissionSet) bool {
	return s.bits&other.bits == other.bits
}

// Slice returns the permissions in declaration order. It never returns nil.
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, s.Len())
	for _, p := range AllPermissions() {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Strings returns the wire names in declaration order. It never returns nil.
func (s PermissionSet) Strings() []string {
	perms := s.Slice()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.String()
	}
	return out
}

// MarshalJSON encodes the set as an array of wire names.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}
