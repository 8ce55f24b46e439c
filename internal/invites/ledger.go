// Package invites maintains the invite-attribution ledger: per-user
// counters derived from noisy join/leave events, reconciled against a
// cached snapshot of each guild's invite codes.
package invites

import (
	"log/slog"
	"sync"
	"time"

	"karybot/entity"
	"karybot/internal/store"
	"karybot/lib/sl"
)

// Accounts younger than this at join time are counted as fake invites for
// the inviter rather than regular ones.
const fakeAccountAge = 72 * time.Hour

// InviteUse is one (code, inviter, use count) tuple from a guild's current
// invite listing.
type InviteUse struct {
	Code      string
	InviterID string
	Uses      int
}

// InviteLister fetches the live invite codes of a guild.
// Implemented by the Discord gateway in bot/.
type InviteLister interface {
	GuildInvites(guildID string) ([]InviteUse, error)
}

// Ledger owns the invite records and the per-guild snapshot cache. The
// cache is in-memory only and rebuilt wholesale on every invite-topology
// change; the records are persisted write-through on every mutation.
type Ledger struct {
	log    *slog.Logger
	store  store.Store
	lister InviteLister

	mu        sync.Mutex
	records   map[string]*entity.InviteRecord
	snapshots map[string]map[string]InviteUse // guild id → code → use
}

func NewLedger(st store.Store, lister InviteLister, log *slog.Logger) *Ledger {
	l := &Ledger{
		log:       log.With(sl.Module("invites")),
		store:     st,
		lister:    lister,
		records:   make(map[string]*entity.InviteRecord),
		snapshots: make(map[string]map[string]InviteUse),
	}
	_ = st.Load(store.RecordInvites, &l.records)
	if l.records == nil {
		l.records = make(map[string]*entity.InviteRecord)
	}
	l.log.With(slog.Int("records", len(l.records))).Info("ledger loaded")
	return l
}

// InitGuild primes the snapshot cache for a guild. Called on ready for
// every guild the bot belongs to and again on invite create/delete.
func (l *Ledger) InitGuild(guildID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshSnapshotLocked(guildID)
}

// RecordJoin attributes a join to an inviter by diffing the guild's invite
// codes against the cached snapshot, then credits the inviter. Joins that
// cannot be attributed (vanity links, missed diffs) are dropped; the cache
// is refreshed either way so a missed diff never repeats.
func (l *Ledger) RecordJoin(guildID, userID string, accountAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	inviterID := l.attributeLocked(guildID)
	if inviterID == "" {
		l.log.With(
			slog.String("guild", guildID),
			slog.String("user", userID),
		).Debug("join without attributable inviter")
		return
	}

	rec := l.recordLocked(inviterID)
	suspicious := accountAge < fakeAccountAge
	if suspicious {
		rec.Fake++
	} else {
		rec.Regular++
	}
	l.persistLocked()

	l.log.With(
		slog.String("guild", guildID),
		slog.String("user", userID),
		slog.String("inviter", inviterID),
		slog.Bool("suspicious", suspicious),
	).Info("join attributed")
}

// RecordLeave is the departure hook. It intentionally does not touch the
// original inviter's counters: whether a departure should decrement the
// inviter who brought the leaving user in is an unresolved product
// question, so the counters stay as they were.
func (l *Ledger) RecordLeave(userID string) {
	l.log.With(slog.String("user", userID)).Debug("member left")
}

// GrantBonus adds admin-granted extra chances to a user's record.
// Amount is taken as-is; negative grants are allowed.
func (l *Ledger) GrantBonus(userID string, amount int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.recordLocked(userID)
	rec.Bonus += amount
	l.persistLocked()
	l.log.With(
		slog.String("user", userID),
		slog.Int("amount", amount),
		slog.Int("bonus", rec.Bonus),
	).Info("bonus granted")
}

// EffectiveInvites returns the derived invite count for a user,
// materializing a zero record for unseen users.
func (l *Ledger) EffectiveInvites(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recordLocked(userID).Effective()
}

// BonusChances returns the raw bonus counter, which multiplies the user's
// weight in giveaway draws.
func (l *Ledger) BonusChances(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recordLocked(userID).Bonus
}

// Record returns a copy of a user's counters for display.
func (l *Ledger) Record(userID string) entity.InviteRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.recordLocked(userID)
}

// Tracked reports how many users have a ledger record.
func (l *Ledger) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *Ledger) recordLocked(userID string) *entity.InviteRecord {
	rec, ok := l.records[userID]
	if !ok {
		rec = &entity.InviteRecord{}
		l.records[userID] = rec
	}
	return rec
}

func (l *Ledger) persistLocked() {
	if err := l.store.Save(store.RecordInvites, l.records); err != nil {
		l.log.Error("persisting ledger", sl.Err(err))
	}
}

// attributeLocked fetches the guild's current invites, finds the first
// code whose use count increased relative to the snapshot and returns its
// inviter. The snapshot is replaced unconditionally. Codes are guild-unique
// and uses grow by one per join, so ties need no special handling.
func (l *Ledger) attributeLocked(guildID string) string {
	current, err := l.lister.GuildInvites(guildID)
	if err != nil {
		l.log.With(slog.String("guild", guildID)).Warn("listing invites", sl.Err(err))
		return ""
	}

	prev := l.snapshots[guildID]
	inviterID := ""
	for _, use := range current {
		before := 0
		if p, ok := prev[use.Code]; ok {
			before = p.Uses
		}
		if use.Uses > before {
			inviterID = use.InviterID
			break
		}
	}

	l.setSnapshotLocked(guildID, current)
	return inviterID
}

func (l *Ledger) refreshSnapshotLocked(guildID string) {
	current, err := l.lister.GuildInvites(guildID)
	if err != nil {
		l.log.With(slog.String("guild", guildID)).Warn("refreshing invite snapshot", sl.Err(err))
		return
	}
	l.setSnapshotLocked(guildID, current)
	l.log.With(
		slog.String("guild", guildID),
		slog.Int("codes", len(current)),
	).Debug("invite snapshot refreshed")
}

func (l *Ledger) setSnapshotLocked(guildID string, current []InviteUse) {
	snapshot := make(map[string]InviteUse, len(current))
	for _, use := range current {
		snapshot[use.Code] = use
	}
	l.snapshots[guildID] = snapshot
}
