// Package tickets drives the per-channel ticket lifecycle: creation,
// service selection, order capture, close with confirmation and grace
// delay, reopen and delete. Sessions are persisted at every transition;
// scanning channel history survives only as a close-time fallback for
// channels that predate the persisted records.
package tickets

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"karybot/entity"
	"karybot/internal/store"
	"karybot/lib/sl"
	"karybot/lib/validate"
)

var (
	ErrNotTicket  = errors.New("not a ticket channel")
	ErrNotClosed  = errors.New("ticket is not closed")
	ErrWrongPhase = errors.New("action not valid in current phase")
)

// Marker title of the order-confirmation post. The history-scan fallback
// looks for it when a channel has no session record.
const OrderMarker = "Order Confirmation"

// Fallback values when close-time extraction finds nothing.
const (
	UnknownOwner   = "Unknown owner"
	GeneralSupport = "general support"
)

// DuplicateError refuses a second active ticket and points the user at
// the existing channel.
type DuplicateError struct {
	ChannelID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("an open ticket already exists: %s", e.ChannelID)
}

// HistoryMessage is the slice of a channel message the close-time
// extraction needs.
type HistoryMessage struct {
	FromBot bool
	Title   string
	Fields  map[string]string
}

// Gateway is the part of the chat platform the ticket machine drives.
// Implemented over discordgo in bot/; tests use a fake.
type Gateway interface {
	// CreateTicketChannel creates a private channel visible to the owner
	// and staff only, under the active ticket category.
	CreateTicketChannel(guildID, name, ownerID string) (string, error)
	RenameChannel(channelID, name string) error
	MoveChannel(channelID, categoryID string) error
	GrantView(channelID, userID string) error
	RevokeView(channelID, userID string) error
	DeleteChannel(channelID string) error
	// MemberTicketChannel scans the active category for a channel the user
	// holds a view overwrite on. Compatibility fallback for channels
	// created before sessions were persisted.
	MemberTicketChannel(guildID, userID string) (string, bool)
	// ChannelHistory returns up to limit messages, oldest first.
	ChannelHistory(channelID string, limit int) ([]HistoryMessage, error)
	// PostSummary posts the close summary with the admin controls.
	PostSummary(channelID string, session *entity.TicketSession) error
}

// Config carries the category targets and grace delays. Zero delays run
// the deferred steps synchronously, which the tests rely on.
type Config struct {
	CategoryID        string
	ArchiveCategoryID string
	CloseDelay        time.Duration
	DeleteDelay       time.Duration
	HistoryLimit      int
}

// Service owns the ticket sessions. One mutex guards the session map;
// gateway side effects run outside it where ordering allows.
type Service struct {
	log  *slog.Logger
	st   store.Store
	gw   Gateway
	conf Config

	mu       sync.Mutex
	sessions map[string]*entity.TicketSession
}

func New(st store.Store, gw Gateway, conf Config, log *slog.Logger) *Service {
	if conf.HistoryLimit <= 0 {
		conf.HistoryLimit = 100
	}
	s := &Service{
		log:      log.With(sl.Module("tickets")),
		st:       st,
		gw:       gw,
		conf:     conf,
		sessions: make(map[string]*entity.TicketSession),
	}
	_ = st.Load(store.RecordTickets, &s.sessions)
	if s.sessions == nil {
		s.sessions = make(map[string]*entity.TicketSession)
	}
	s.log.With(slog.Int("sessions", len(s.sessions))).Info("ticket sessions loaded")
	return s
}

// Open creates a ticket for a user. One active ticket per user: a second
// request is refused with a DuplicateError naming the existing channel.
func (s *Service) Open(guildID, ownerID, ownerName string) (*entity.TicketSession, error) {
	s.mu.Lock()
	for _, session := range s.sessions {
		if session.GuildID == guildID && session.OwnerID == ownerID && session.Active() {
			s.mu.Unlock()
			return nil, &DuplicateError{ChannelID: session.ChannelID}
		}
	}
	s.mu.Unlock()

	// Channels opened before sessions were persisted: fall back to the
	// permission-overwrite scan.
	if channelID, found := s.gw.MemberTicketChannel(guildID, ownerID); found {
		return nil, &DuplicateError{ChannelID: channelID}
	}

	name := fmt.Sprintf("ticket-%s", slug(ownerName))
	channelID, err := s.gw.CreateTicketChannel(guildID, name, ownerID)
	if err != nil {
		return nil, fmt.Errorf("creating ticket channel: %w", err)
	}

	session := &entity.TicketSession{
		ChannelID: channelID,
		GuildID:   guildID,
		OwnerID:   ownerID,
		OwnerName: ownerName,
		Phase:     entity.PhaseAwaitingService,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[channelID] = session
	s.persistLocked()
	s.mu.Unlock()

	s.log.With(
		slog.String("channel", channelID),
		slog.String("owner", ownerID),
	).Info("ticket opened")
	return session, nil
}

// SelectService records the chosen service family and advances the phase.
func (s *Service) SelectService(channelID, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[channelID]
	if !ok {
		return ErrNotTicket
	}
	session.Service = service
	session.Phase = entity.PhaseServiceSelected
	s.persistLocked()
	return nil
}

// CaptureOrder stores the submitted order form, assigns the order
// reference and encodes service and requester into the channel name.
// The rename and category move are cosmetic: failures there are logged as
// soft warnings and never fail the capture.
func (s *Service) CaptureOrder(channelID string, order entity.OrderDetails) (*entity.TicketSession, error) {
	if err := validate.Struct(&order); err != nil {
		return nil, fmt.Errorf("order: %w", err)
	}

	s.mu.Lock()
	session, ok := s.sessions[channelID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotTicket
	}
	order.Reference = strings.Split(uuid.NewString(), "-")[0]
	session.Order = &order
	session.Phase = entity.PhaseOrderCaptured
	s.persistLocked()
	name := fmt.Sprintf("%s-%s", slug(serviceOrDefault(session)), slug(session.OwnerName))
	s.mu.Unlock()

	if err := s.gw.RenameChannel(channelID, name); err != nil {
		s.log.With(slog.String("channel", channelID)).Warn("renaming ticket", sl.Err(err))
	}

	s.log.With(
		slog.String("channel", channelID),
		slog.String("reference", order.Reference),
		slog.String("package", order.Package),
	).Info("order captured")
	return session, nil
}

// RequestClose records the pending confirmation. The previous phase is
// kept so a cancel restores it exactly.
func (s *Service) RequestClose(channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[channelID]
	if !ok {
		return ErrNotTicket
	}
	if session.Phase == entity.PhaseClosed {
		return ErrWrongPhase
	}
	if session.Phase != entity.PhaseCloseRequested {
		session.PrevPhase = session.Phase
		session.Phase = entity.PhaseCloseRequested
		s.persistLocked()
	}
	return nil
}

// CancelClose discards the confirmation prompt and restores the phase the
// ticket was in before the close request.
func (s *Service) CancelClose(channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[channelID]
	if !ok {
		return ErrNotTicket
	}
	if session.Phase != entity.PhaseCloseRequested {
		return ErrWrongPhase
	}
	session.Phase = session.PrevPhase
	session.PrevPhase = ""
	s.persistLocked()
	return nil
}

// ConfirmClose finishes the close after the grace delay. The permission
// revocation and archive move are the critical steps and always run; a
// missing session record falls back to scanning channel history for the
// order-confirmation post.
func (s *Service) ConfirmClose(channelID, closedBy string) {
	if s.conf.CloseDelay > 0 {
		time.AfterFunc(s.conf.CloseDelay, func() {
			s.finalizeClose(channelID, closedBy)
		})
		return
	}
	s.finalizeClose(channelID, closedBy)
}

func (s *Service) finalizeClose(channelID, closedBy string) {
	s.mu.Lock()
	session, ok := s.sessions[channelID]
	if ok && session.Phase == entity.PhaseClosed {
		s.mu.Unlock()
		return
	}
	if !ok {
		session = s.reconstructLocked(channelID)
		s.sessions[channelID] = session
	}
	session.Phase = entity.PhaseClosed
	session.PrevPhase = ""
	session.ClosedBy = closedBy
	s.persistLocked()
	ownerID := session.OwnerID
	s.mu.Unlock()

	// Critical steps: revoke the requester's view and archive the channel.
	if ownerID != "" {
		if err := s.gw.RevokeView(channelID, ownerID); err != nil {
			s.log.With(slog.String("channel", channelID)).Error("revoking ticket access", sl.Err(err))
		}
	}
	if s.conf.ArchiveCategoryID != "" {
		if err := s.gw.MoveChannel(channelID, s.conf.ArchiveCategoryID); err != nil {
			s.log.With(slog.String("channel", channelID)).Warn("archiving ticket", sl.Err(err))
		}
	}
	if err := s.gw.PostSummary(channelID, session); err != nil {
		s.log.With(slog.String("channel", channelID)).Warn("posting close summary", sl.Err(err))
	}

	s.log.With(
		slog.String("channel", channelID),
		slog.String("closed_by", closedBy),
	).Info("ticket closed")
}

// reconstructLocked rebuilds a best-effort session from channel history:
// the owner from the order-confirmation post's attributed customer, the
// item from its package field. Never blocks the close.
func (s *Service) reconstructLocked(channelID string) *entity.TicketSession {
	session := &entity.TicketSession{
		ChannelID: channelID,
		OwnerName: UnknownOwner,
		Service:   GeneralSupport,
		CreatedAt: time.Now(),
	}
	history, err := s.gw.ChannelHistory(channelID, s.conf.HistoryLimit)
	if err != nil {
		s.log.With(slog.String("channel", channelID)).Warn("scanning ticket history", sl.Err(err))
		return session
	}
	for _, msg := range history {
		if !msg.FromBot || msg.Title != OrderMarker {
			continue
		}
		if owner, ok := msg.Fields["Customer"]; ok {
			session.OwnerID = strings.Trim(owner, "<@>")
			session.OwnerName = owner
		}
		if pkg, ok := msg.Fields["Package"]; ok {
			session.Service = pkg
			session.Order = &entity.OrderDetails{
				Package: pkg,
				Payment: msg.Fields["Payment"],
			}
		}
		break
	}
	return session
}

// Reopen restores the owner's access and returns the channel to the
// active category. The session resumes its pre-close working phase.
func (s *Service) Reopen(channelID string) error {
	s.mu.Lock()
	session, ok := s.sessions[channelID]
	if !ok {
		s.mu.Unlock()
		return ErrNotTicket
	}
	if session.Phase != entity.PhaseClosed {
		s.mu.Unlock()
		return ErrNotClosed
	}
	if session.Order != nil {
		session.Phase = entity.PhaseOrderCaptured
	} else {
		session.Phase = entity.PhaseAwaitingService
	}
	session.ClosedBy = ""
	s.persistLocked()
	ownerID := session.OwnerID
	s.mu.Unlock()

	if ownerID != "" {
		if err := s.gw.GrantView(channelID, ownerID); err != nil {
			return fmt.Errorf("restoring ticket access: %w", err)
		}
	}
	if s.conf.CategoryID != "" {
		if err := s.gw.MoveChannel(channelID, s.conf.CategoryID); err != nil {
			s.log.With(slog.String("channel", channelID)).Warn("unarchiving ticket", sl.Err(err))
		}
	}
	s.log.With(slog.String("channel", channelID)).Info("ticket reopened")
	return nil
}

// Delete destroys a closed ticket channel after the grace delay.
// Irreversible; allowed only from the closed phase.
func (s *Service) Delete(channelID string) error {
	s.mu.Lock()
	session, ok := s.sessions[channelID]
	if !ok {
		s.mu.Unlock()
		return ErrNotTicket
	}
	if session.Phase != entity.PhaseClosed {
		s.mu.Unlock()
		return ErrNotClosed
	}
	s.mu.Unlock()

	if s.conf.DeleteDelay > 0 {
		time.AfterFunc(s.conf.DeleteDelay, func() {
			s.finalizeDelete(channelID)
		})
		return nil
	}
	s.finalizeDelete(channelID)
	return nil
}

func (s *Service) finalizeDelete(channelID string) {
	if err := s.gw.DeleteChannel(channelID); err != nil {
		s.log.With(slog.String("channel", channelID)).Error("deleting ticket channel", sl.Err(err))
		return
	}
	s.mu.Lock()
	delete(s.sessions, channelID)
	s.persistLocked()
	s.mu.Unlock()
	s.log.With(slog.String("channel", channelID)).Info("ticket deleted")
}

// ForceRename renames a ticket channel on admin request.
func (s *Service) ForceRename(channelID, name string) error {
	return s.gw.RenameChannel(channelID, slug(name))
}

// Session returns the persisted session for a channel.
func (s *Service) Session(channelID string) (*entity.TicketSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[channelID]
	return session, ok
}

// OpenCount reports how many tickets are active.
func (s *Service) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, session := range s.sessions {
		if session.Active() {
			n++
		}
	}
	return n
}

func (s *Service) persistLocked() {
	if err := s.st.Save(store.RecordTickets, s.sessions); err != nil {
		s.log.Error("persisting ticket sessions", sl.Err(err))
	}
}

func serviceOrDefault(session *entity.TicketSession) string {
	if session.Service != "" {
		return session.Service
	}
	return "ticket"
}

// slug lowercases and hyphenates a name for use in a channel name.
func slug(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Join(strings.Fields(name), "-")
	return strings.Trim(name, "-")
}
