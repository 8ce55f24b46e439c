package store

// Store is the durable record contract shared by the invite ledger, the
// giveaway scheduler and the ticket machine. Each record set is a single
// named flat document.
//
// Load never fails: a missing or unreadable record leaves out untouched so
// callers start from empty state. Save atomically replaces the whole
// record. The store does no locking; each caller serializes its own
// read-modify-write cycles.
type Store interface {
	Load(name string, out any) error
	Save(name string, v any) error
}

// Record names. One flat document per store.
const (
	RecordInvites   = "invites"
	RecordGiveaways = "giveaways"
	RecordTickets   = "tickets"
)
