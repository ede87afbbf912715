package authz

// Permission is an atomic, named capability assigned to a role through
// platform data, e.g. "create:product". Read-only for the session duration.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Service     string `json:"service"`
	Action      string `json:"action"`
	IsActive    bool   `json:"is_active"`
	Description string `json:"description,omitempty"`
}

// Snapshot is the set of permissions fetched once per login for the current
// role. It is replaced wholesale on refresh, never mutated in place.
type Snapshot []Permission

// Allows reports whether the snapshot contains an active permission with the
// given name. Inactive permissions never grant access.
func (s Snapshot) Allows(name string) bool {
	for _, p := range s {
		if p.Name == name && p.IsActive {
			return true
		}
	}
	return false
}

// HasPermission checks a fine-grained permission against the snapshot.
// Super roles short-circuit before the snapshot is touched, so they hold
// every permission even when nothing has been loaded yet. An empty or nil
// snapshot denies everything else.
func HasPermission(roleID int64, snapshot Snapshot, name string) bool {
	if IsSuperRole(roleID) {
		return true
	}
	return snapshot.Allows(name)
}

// CheckAny reports whether at least one of the named permissions is held.
func CheckAny(roleID int64, snapshot Snapshot, names ...string) bool {
	for _, name := range names {
		if HasPermission(roleID, snapshot, name) {
			return true
		}
	}
	return false
}

// CheckAll reports whether every named permission is held. An empty
// names list is vacuously true; security-sensitive callers must pass at
// least one name (the route middleware enforces this at construction time).
func CheckAll(roleID int64, snapshot Snapshot, names ...string) bool {
	for _, name := range names {
		if !HasPermission(roleID, snapshot, name) {
			return false
		}
	}
	return true
}
