// Package giveaway runs timed, invite-gated raffles: create/join/end/reroll
// with a durable countdown per giveaway, weighted winner selection and
// resume-on-restart recovery.
package giveaway

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"karybot/entity"
	"karybot/internal/store"
	"karybot/lib/clock"
	"karybot/lib/sl"
	"karybot/lib/validate"
)

var (
	ErrAlreadyEnded        = errors.New("giveaway already ended")
	ErrAlreadyJoined       = errors.New("already entered this giveaway")
	ErrInsufficientInvites = errors.New("not enough invites to enter")
	ErrNotFound            = errors.New("giveaway not found")
	ErrNoParticipants      = errors.New("giveaway has no participants")
)

// Announcer is the outbound half of the gateway the scheduler drives.
// Implemented over discordgo in bot/; tests use a fake.
type Announcer interface {
	// AnnounceGiveaway posts the announcement and returns its message ID,
	// which becomes the giveaway's key.
	AnnounceGiveaway(g *entity.Giveaway) (string, error)
	// UpdateEntryCount refreshes the live entry counter on the announcement.
	UpdateEntryCount(g *entity.Giveaway) error
	// MarkEnded edits the announcement to its terminal state and removes
	// the entry button.
	MarkEnded(g *entity.Giveaway) error
	// AnnounceWinners posts the winner list (or a no-winners notice when
	// empty). Reroll announcements are side-channel only.
	AnnounceWinners(g *entity.Giveaway, winners []string, reroll bool) error
}

// InviteSource reports invite standing for entry gating and draw weights.
// Implemented by invites.Ledger.
type InviteSource interface {
	EffectiveInvites(userID string) int
	BonusChances(userID string) int
}

// Service owns the giveaway records and their end timers. All record
// mutations happen under one mutex; announcement edits for joins stay
// inside the critical section so displayed counts never run backwards.
type Service struct {
	log       *slog.Logger
	store     store.Store
	invites   InviteSource
	announcer Announcer

	mu      sync.Mutex
	records map[string]*entity.Giveaway
	timers  map[string]*time.Timer
	rnd     *rand.Rand
	now     func() time.Time
}

func New(st store.Store, invites InviteSource, announcer Announcer, log *slog.Logger) *Service {
	s := &Service{
		log:       log.With(sl.Module("giveaway")),
		store:     st,
		invites:   invites,
		announcer: announcer,
		records:   make(map[string]*entity.Giveaway),
		timers:    make(map[string]*time.Timer),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
	_ = st.Load(store.RecordGiveaways, &s.records)
	if s.records == nil {
		s.records = make(map[string]*entity.Giveaway)
	}
	s.log.With(slog.Int("records", len(s.records))).Info("giveaways loaded")
	return s
}

// Create parses the duration spec, posts the announcement and schedules
// the durable end timer. The record key is the announcement message ID.
func (s *Service) Create(guildID, channelID, durationSpec, prize string, winnerCount, requiredInvites int, hostID string) (*entity.Giveaway, error) {
	duration, err := clock.ParseSpec(durationSpec)
	if err != nil {
		return nil, err
	}

	g := &entity.Giveaway{
		GuildID:         guildID,
		ChannelID:       channelID,
		Prize:           prize,
		WinnerCount:     winnerCount,
		RequiredInvites: requiredInvites,
		HostID:          hostID,
		CreatedAt:       s.now(),
		EndsAt:          s.now().Add(duration),
		Participants:    []string{},
	}
	if err := validate.Struct(g); err != nil {
		return nil, fmt.Errorf("giveaway: %w", err)
	}

	messageID, err := s.announcer.AnnounceGiveaway(g)
	if err != nil {
		return nil, fmt.Errorf("announcing giveaway: %w", err)
	}
	g.MessageID = messageID

	s.mu.Lock()
	s.records[messageID] = g
	s.persistLocked()
	s.scheduleLocked(g)
	s.mu.Unlock()

	s.log.With(
		slog.String("giveaway", messageID),
		slog.String("prize", prize),
		slog.Int("winners", winnerCount),
		slog.Time("ends_at", g.EndsAt),
	).Info("giveaway created")
	return g, nil
}

// Join enters a user. At-most-once membership is the core invariant:
// the duplicate check, the append, the persist and the displayed-count
// update all happen inside the per-service critical section.
func (s *Service) Join(messageID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.records[messageID]
	if !ok {
		return ErrNotFound
	}
	if g.Ended {
		return ErrAlreadyEnded
	}
	if g.HasParticipant(userID) {
		return ErrAlreadyJoined
	}
	if have := s.invites.EffectiveInvites(userID); have < g.RequiredInvites {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientInvites, g.RequiredInvites, have)
	}

	g.Participants = append(g.Participants, userID)
	s.persistLocked()
	if err := s.announcer.UpdateEntryCount(g); err != nil {
		s.log.With(slog.String("giveaway", messageID)).Warn("updating entry count", sl.Err(err))
	}
	return nil
}

// End finishes a giveaway: draws winners, persists the terminal state and
// edits the announcement. Idempotent — a second call, a stale timer or an
// unknown ID is a no-op, which is what makes timer races and restarts safe.
func (s *Service) End(messageID string) {
	s.mu.Lock()
	g, ok := s.records[messageID]
	if !ok || g.Ended {
		s.mu.Unlock()
		return
	}
	s.stopTimerLocked(messageID)

	winners := drawWinners(g.Participants, s.invites.BonusChances, g.WinnerCount, s.rnd)
	g.Winners = winners
	g.Ended = true
	s.persistLocked()
	s.mu.Unlock()

	if err := s.announcer.MarkEnded(g); err != nil {
		s.log.With(slog.String("giveaway", messageID)).Warn("marking giveaway ended", sl.Err(err))
	}
	if err := s.announcer.AnnounceWinners(g, winners, false); err != nil {
		s.log.With(slog.String("giveaway", messageID)).Warn("announcing winners", sl.Err(err))
	}

	s.log.With(
		slog.String("giveaway", messageID),
		slog.Int("participants", len(g.Participants)),
		slog.Int("winners", len(winners)),
	).Info("giveaway ended")
}

// Reroll re-runs the draw and announces new winners without touching the
// persisted winner list. Works on ended giveaways by design.
func (s *Service) Reroll(messageID string, winnerCount int) ([]string, error) {
	s.mu.Lock()
	g, ok := s.records[messageID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if len(g.Participants) == 0 {
		s.mu.Unlock()
		return nil, ErrNoParticipants
	}
	if winnerCount < 1 {
		winnerCount = g.WinnerCount
	}
	winners := drawWinners(g.Participants, s.invites.BonusChances, winnerCount, s.rnd)
	s.mu.Unlock()

	if err := s.announcer.AnnounceWinners(g, winners, true); err != nil {
		s.log.With(slog.String("giveaway", messageID)).Warn("announcing reroll", sl.Err(err))
	}
	return winners, nil
}

// ResumeAll restores end timers after a restart. Overdue giveaways end
// immediately; the rest get a timer for the remaining duration. Exactly one
// natural end attempt per giveaway, with End's idempotence absorbing any
// duplicate trigger.
func (s *Service) ResumeAll() {
	s.mu.Lock()
	var overdue []string
	resumed := 0
	for id, g := range s.records {
		if g.Ended {
			continue
		}
		if !g.EndsAt.After(s.now()) {
			overdue = append(overdue, id)
			continue
		}
		s.scheduleLocked(g)
		resumed++
	}
	s.mu.Unlock()

	for _, id := range overdue {
		s.End(id)
	}
	s.log.With(
		slog.Int("resumed", resumed),
		slog.Int("ended_overdue", len(overdue)),
	).Info("giveaways resumed")
}

// SweepOverdue ends every running giveaway whose end time has passed.
// Safety net behind the one-shot timers; harmless to run concurrently
// with them.
func (s *Service) SweepOverdue() {
	s.mu.Lock()
	var overdue []string
	for id, g := range s.records {
		if !g.Ended && !g.EndsAt.After(s.now()) {
			overdue = append(overdue, id)
		}
	}
	s.mu.Unlock()

	for _, id := range overdue {
		s.End(id)
	}
}

// Active reports how many giveaways are still running.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, g := range s.records {
		if !g.Ended {
			n++
		}
	}
	return n
}

// Get returns a giveaway record by announcement message ID.
func (s *Service) Get(messageID string) (*entity.Giveaway, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.records[messageID]
	return g, ok
}

func (s *Service) scheduleLocked(g *entity.Giveaway) {
	id := g.MessageID
	remaining := g.EndsAt.Sub(s.now())
	s.timers[id] = time.AfterFunc(remaining, func() {
		s.End(id)
	})
}

func (s *Service) stopTimerLocked(messageID string) {
	if t, ok := s.timers[messageID]; ok {
		t.Stop()
		delete(s.timers, messageID)
	}
}

func (s *Service) persistLocked() {
	if err := s.store.Save(store.RecordGiveaways, s.records); err != nil {
		s.log.Error("persisting giveaways", sl.Err(err))
	}
}
