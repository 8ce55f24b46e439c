package invites

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type memStore struct {
	saved map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string][]byte)}
}

func (m *memStore) Load(name string, out any) error {
	if data, ok := m.saved[name]; ok {
		_ = json.Unmarshal(data, out)
	}
	return nil
}

func (m *memStore) Save(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.saved[name] = data
	return nil
}

type fakeLister struct {
	uses map[string][]InviteUse
	err  error
}

func (f *fakeLister) GuildInvites(guildID string) ([]InviteUse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.uses[guildID], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const oldAccount = 30 * 24 * time.Hour

func TestRecordJoinAttributesRegular(t *testing.T) {
	lister := &fakeLister{uses: map[string][]InviteUse{
		"g1": {{Code: "abc", InviterID: "inviter", Uses: 3}},
	}}
	l := NewLedger(newMemStore(), lister, testLogger())
	l.InitGuild("g1")

	lister.uses["g1"] = []InviteUse{{Code: "abc", InviterID: "inviter", Uses: 4}}
	l.RecordJoin("g1", "newbie", oldAccount)

	rec := l.Record("inviter")
	if rec.Regular != 1 || rec.Fake != 0 {
		t.Errorf("expected one regular invite, got %+v", rec)
	}
	if l.EffectiveInvites("inviter") != 1 {
		t.Errorf("effective = %d, want 1", l.EffectiveInvites("inviter"))
	}
}

func TestRecordJoinYoungAccountCountsAsFake(t *testing.T) {
	lister := &fakeLister{uses: map[string][]InviteUse{
		"g1": {{Code: "abc", InviterID: "inviter", Uses: 0}},
	}}
	l := NewLedger(newMemStore(), lister, testLogger())
	l.InitGuild("g1")

	lister.uses["g1"] = []InviteUse{{Code: "abc", InviterID: "inviter", Uses: 1}}
	l.RecordJoin("g1", "fresh", time.Hour)

	rec := l.Record("inviter")
	if rec.Fake != 1 || rec.Regular != 0 {
		t.Errorf("expected one fake invite, got %+v", rec)
	}
	if l.EffectiveInvites("inviter") != 0 {
		t.Errorf("fake invites must not count, effective = %d", l.EffectiveInvites("inviter"))
	}
}

func TestRecordJoinUnattributableIsDropped(t *testing.T) {
	lister := &fakeLister{uses: map[string][]InviteUse{
		"g1": {{Code: "abc", InviterID: "inviter", Uses: 2}},
	}}
	l := NewLedger(newMemStore(), lister, testLogger())
	l.InitGuild("g1")

	// No code's use count changed: vanity link or missed event.
	l.RecordJoin("g1", "ghost", oldAccount)

	if l.Tracked() != 0 {
		t.Errorf("unattributable join must not create records, tracked = %d", l.Tracked())
	}
}

func TestRecordJoinDoesNotRepeatAttribution(t *testing.T) {
	lister := &fakeLister{uses: map[string][]InviteUse{
		"g1": {{Code: "abc", InviterID: "inviter", Uses: 0}},
	}}
	l := NewLedger(newMemStore(), lister, testLogger())
	l.InitGuild("g1")

	lister.uses["g1"] = []InviteUse{{Code: "abc", InviterID: "inviter", Uses: 1}}
	l.RecordJoin("g1", "first", oldAccount)
	// Second join with no further use increase must not credit again.
	l.RecordJoin("g1", "second", oldAccount)

	if rec := l.Record("inviter"); rec.Regular != 1 {
		t.Errorf("expected exactly one credit, got %+v", rec)
	}
}

func TestRecordJoinListerFailure(t *testing.T) {
	lister := &fakeLister{err: errors.New("api down")}
	l := NewLedger(newMemStore(), lister, testLogger())

	l.RecordJoin("g1", "user", oldAccount)

	if l.Tracked() != 0 {
		t.Error("lister failure must not create records")
	}
}

func TestGrantBonusAndEffectiveClamp(t *testing.T) {
	l := NewLedger(newMemStore(), &fakeLister{}, testLogger())

	l.GrantBonus("user", 3)
	if l.EffectiveInvites("user") != 3 {
		t.Errorf("effective = %d, want 3", l.EffectiveInvites("user"))
	}
	if l.BonusChances("user") != 3 {
		t.Errorf("bonus = %d, want 3", l.BonusChances("user"))
	}

	l.GrantBonus("user", -10)
	if l.EffectiveInvites("user") != 0 {
		t.Errorf("effective must clamp at zero, got %d", l.EffectiveInvites("user"))
	}
	if l.BonusChances("user") != -7 {
		t.Errorf("bonus counter keeps the raw value, got %d", l.BonusChances("user"))
	}
}

func TestRecordLeaveKeepsCounters(t *testing.T) {
	lister := &fakeLister{uses: map[string][]InviteUse{
		"g1": {{Code: "abc", InviterID: "inviter", Uses: 0}},
	}}
	l := NewLedger(newMemStore(), lister, testLogger())
	l.InitGuild("g1")

	lister.uses["g1"] = []InviteUse{{Code: "abc", InviterID: "inviter", Uses: 1}}
	l.RecordJoin("g1", "member", oldAccount)
	l.RecordLeave("member")

	if rec := l.Record("inviter"); rec.Regular != 1 || rec.Leaves != 0 {
		t.Errorf("departure must not change counters, got %+v", rec)
	}
}

func TestLedgerPersistsAcrossRestart(t *testing.T) {
	st := newMemStore()
	l := NewLedger(st, &fakeLister{}, testLogger())
	l.GrantBonus("user", 5)

	restarted := NewLedger(st, &fakeLister{}, testLogger())
	if restarted.BonusChances("user") != 5 {
		t.Errorf("bonus lost across restart, got %d", restarted.BonusChances("user"))
	}
}
