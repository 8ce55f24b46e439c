package giveaway

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"karybot/entity"
	"karybot/lib/clock"
)

type memStore struct {
	mu    sync.Mutex
	saves int
}

func (m *memStore) Load(name string, out any) error { return nil }

func (m *memStore) Save(name string, v any) error {
	m.mu.Lock()
	m.saves++
	m.mu.Unlock()
	return nil
}

type fakeInvites struct {
	effective map[string]int
	bonus     map[string]int
}

func (f *fakeInvites) EffectiveInvites(userID string) int { return f.effective[userID] }
func (f *fakeInvites) BonusChances(userID string) int     { return f.bonus[userID] }

type fakeAnnouncer struct {
	mu           sync.Mutex
	nextID       int
	entryUpdates int
	endedMarks   int
	winnerCalls  []winnerCall
	announceErr  error
}

type winnerCall struct {
	winners []string
	reroll  bool
}

func (f *fakeAnnouncer) AnnounceGiveaway(g *entity.Giveaway) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.announceErr != nil {
		return "", f.announceErr
	}
	f.nextID++
	return fmt.Sprintf("msg-%d", f.nextID), nil
}

func (f *fakeAnnouncer) UpdateEntryCount(g *entity.Giveaway) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entryUpdates++
	return nil
}

func (f *fakeAnnouncer) MarkEnded(g *entity.Giveaway) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endedMarks++
	return nil
}

func (f *fakeAnnouncer) AnnounceWinners(g *entity.Giveaway, winners []string, reroll bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.winnerCalls = append(f.winnerCalls, winnerCall{winners: winners, reroll: reroll})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(inv *fakeInvites) (*Service, *fakeAnnouncer) {
	ann := &fakeAnnouncer{}
	s := New(&memStore{}, inv, ann, testLogger())
	s.rnd = rand.New(rand.NewSource(1))
	return s, ann
}

func TestCreateInvalidDuration(t *testing.T) {
	s, _ := newTestService(&fakeInvites{})
	_, err := s.Create("g", "c", "banana", "prize", 1, 0, "host")
	if !errors.Is(err, clock.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	s, _ := newTestService(&fakeInvites{})
	if _, err := s.Create("g", "c", "10m", "", 1, 0, "host"); err == nil {
		t.Error("empty prize must be rejected")
	}
	if _, err := s.Create("g", "c", "10m", "prize", 0, 0, "host"); err == nil {
		t.Error("zero winner count must be rejected")
	}
}

func TestJoinOnceOnly(t *testing.T) {
	s, ann := newTestService(&fakeInvites{})
	g, err := s.Create("g", "c", "1h", "prize", 1, 0, "host")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Join(g.MessageID, "alice"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if err := s.Join(g.MessageID, "alice"); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
	if len(g.Participants) != 1 {
		t.Errorf("participants = %v, want one entry", g.Participants)
	}
	if ann.entryUpdates != 1 {
		t.Errorf("entry updates = %d, want 1", ann.entryUpdates)
	}
}

func TestJoinUnknownGiveaway(t *testing.T) {
	s, _ := newTestService(&fakeInvites{})
	if err := s.Join("nope", "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJoinInviteGate(t *testing.T) {
	inv := &fakeInvites{effective: map[string]int{"alice": 3}}
	s, _ := newTestService(inv)
	g, err := s.Create("g", "c", "1h", "prize", 1, 5, "host")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Join(g.MessageID, "alice"); !errors.Is(err, ErrInsufficientInvites) {
		t.Fatalf("expected ErrInsufficientInvites, got %v", err)
	}

	// Admin grants push her over the threshold.
	inv.effective["alice"] = 13
	if err := s.Join(g.MessageID, "alice"); err != nil {
		t.Fatalf("join after grant: %v", err)
	}
}

func TestEndEveryoneWinsWhenFewEntries(t *testing.T) {
	s, ann := newTestService(&fakeInvites{})
	g, err := s.Create("g", "c", "1h", "prize", 3, 0, "host")
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Join(g.MessageID, "alice")
	_ = s.Join(g.MessageID, "bob")

	s.End(g.MessageID)

	if !g.Ended {
		t.Fatal("giveaway not marked ended")
	}
	if len(g.Winners) != 2 {
		t.Errorf("winners = %v, want both participants", g.Winners)
	}
	if ann.endedMarks != 1 || len(ann.winnerCalls) != 1 {
		t.Errorf("announcement calls: marks=%d winners=%d", ann.endedMarks, len(ann.winnerCalls))
	}
}

func TestEndIsIdempotent(t *testing.T) {
	s, ann := newTestService(&fakeInvites{})
	g, err := s.Create("g", "c", "1h", "prize", 1, 0, "host")
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Join(g.MessageID, "alice")

	s.End(g.MessageID)
	s.End(g.MessageID)
	s.End("unknown")

	if ann.endedMarks != 1 {
		t.Errorf("MarkEnded called %d times, want 1", ann.endedMarks)
	}
	if err := s.Join(g.MessageID, "bob"); !errors.Is(err, ErrAlreadyEnded) {
		t.Fatalf("join after end: expected ErrAlreadyEnded, got %v", err)
	}
}

func TestEndWithNoParticipants(t *testing.T) {
	s, ann := newTestService(&fakeInvites{})
	g, err := s.Create("g", "c", "1h", "prize", 2, 0, "host")
	if err != nil {
		t.Fatal(err)
	}

	s.End(g.MessageID)

	if !g.Ended {
		t.Fatal("giveaway not marked ended")
	}
	if len(ann.winnerCalls) != 1 || len(ann.winnerCalls[0].winners) != 0 {
		t.Errorf("expected an empty winner announcement, got %+v", ann.winnerCalls)
	}
}

func TestReroll(t *testing.T) {
	s, ann := newTestService(&fakeInvites{})
	g, err := s.Create("g", "c", "1h", "prize", 1, 0, "host")
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Join(g.MessageID, "alice")
	_ = s.Join(g.MessageID, "bob")
	s.End(g.MessageID)
	recorded := append([]string(nil), g.Winners...)

	winners, err := s.Reroll(g.MessageID, 0)
	if err != nil {
		t.Fatalf("reroll: %v", err)
	}
	if len(winners) != 1 {
		t.Errorf("reroll winners = %v, want 1", winners)
	}
	if len(g.Winners) != len(recorded) || g.Winners[0] != recorded[0] {
		t.Error("reroll must not rewrite the persisted winner list")
	}
	last := ann.winnerCalls[len(ann.winnerCalls)-1]
	if !last.reroll {
		t.Error("reroll announcement not flagged as reroll")
	}
}

func TestRerollErrors(t *testing.T) {
	s, _ := newTestService(&fakeInvites{})
	if _, err := s.Reroll("nope", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	g, err := s.Create("g", "c", "1h", "prize", 1, 0, "host")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Reroll(g.MessageID, 0); !errors.Is(err, ErrNoParticipants) {
		t.Errorf("expected ErrNoParticipants, got %v", err)
	}
}

func TestResumeAllEndsOverdue(t *testing.T) {
	s, ann := newTestService(&fakeInvites{})
	now := time.Now()
	s.records["overdue"] = &entity.Giveaway{
		MessageID:    "overdue",
		ChannelID:    "c",
		Prize:        "prize",
		WinnerCount:  1,
		EndsAt:       now.Add(-time.Minute),
		Participants: []string{"alice"},
	}
	s.records["running"] = &entity.Giveaway{
		MessageID:   "running",
		ChannelID:   "c",
		Prize:       "prize",
		WinnerCount: 1,
		EndsAt:      now.Add(time.Hour),
	}

	s.ResumeAll()

	if !s.records["overdue"].Ended {
		t.Error("overdue giveaway must end on resume")
	}
	if s.records["running"].Ended {
		t.Error("running giveaway must keep going")
	}
	if ann.endedMarks != 1 {
		t.Errorf("MarkEnded called %d times, want 1", ann.endedMarks)
	}
	if s.Active() != 1 {
		t.Errorf("active = %d, want 1", s.Active())
	}
}

func TestSweepOverdue(t *testing.T) {
	s, _ := newTestService(&fakeInvites{})
	s.records["late"] = &entity.Giveaway{
		MessageID:   "late",
		ChannelID:   "c",
		Prize:       "prize",
		WinnerCount: 1,
		EndsAt:      time.Now().Add(-time.Second),
	}

	s.SweepOverdue()

	if !s.records["late"].Ended {
		t.Error("sweep must end overdue giveaways")
	}
}
