// Package auth implements the static admin allow-list gate.
package auth

// AdminSet is a fixed, process-lifetime set of user ids authorized to
// broadcast and to query privileged status. The set never changes after
// construction.
type AdminSet struct {
	primary int64
	ids     map[int64]struct{}
}

// NewAdminSet builds the set from the primary admin id plus optional extra
// ids. Zero ids are dropped; duplicates collapse.
func NewAdminSet(primary int64, extras ...int64) *AdminSet {
	ids := make(map[int64]struct{}, len(extras)+1)
	if primary != 0 {
		ids[primary] = struct{}{}
	}
	for _, id := range extras {
		if id != 0 {
			ids[id] = struct{}{}
		}
	}

	return &AdminSet{
		primary: primary,
		ids:     ids,
	}
}

// IsAdmin reports whether the given user id is authorized.
func (s *AdminSet) IsAdmin(userID int64) bool {
	if s == nil || userID == 0 {
		return false
	}

	_, ok := s.ids[userID]
	return ok
}

// Primary returns the primary admin id, the recipient of startup notices.
func (s *AdminSet) Primary() int64 {
	if s == nil {
		return 0
	}

	return s.primary
}

// Count returns the number of distinct authorized ids.
func (s *AdminSet) Count() int {
	if s == nil {
		return 0
	}

	return len(s.ids)
}
