package reconcile

// recentIDs remembers the last size ids it was given.
type recentIDs struct {
	ids  map[string]struct{}
	ring []string
	next int
}

func newRecentIDs(size int) *recentIDs {
	if size <= 0 {
		size = 1
	}
	return &recentIDs{
		ids:  make(map[string]struct{}, size),
		ring: make([]string, size),
	}
}

// Seen reports whether id was already added and adds it otherwise.
func (r *recentIDs) Seen(id string) bool {
	if _, ok := r.ids[id]; ok {
		return true
	}

	if evicted := r.ring[r.next]; evicted != "" {
		delete(r.ids, evicted)
	}
	r.ring[r.next] = id
	r.next = (r.next + 1) % len(r.ring)
	r.ids[id] = struct{}{}

	return false
}
