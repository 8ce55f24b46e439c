package entity

// InviteRecord accumulates per-user invite attribution counters.
// Records are created lazily on first reference and never deleted.
// Regular and Fake are incremented by join attribution, Leaves is reserved
// for departure tracking, Bonus is granted by admins and is the only field
// allowed to go negative.
type InviteRecord struct {
	Regular int `json:"regular" bson:"regular"`
	Bonus   int `json:"bonus" bson:"bonus"`
	Leaves  int `json:"leaves" bson:"leaves"`
	Fake    int `json:"fake" bson:"fake"`
}

// Effective is the invite count the user is credited with,
// clamped so it never goes negative.
func (r *InviteRecord) Effective() int {
	n := r.Regular + r.Bonus - r.Leaves - r.Fake
	if n < 0 {
		return 0
	}
	return n
}
