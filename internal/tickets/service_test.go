package tickets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"karybot/entity"
)

type memStore struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string][]byte)}
}

func (m *memStore) Load(name string, out any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.saved[name]; ok {
		_ = json.Unmarshal(data, out)
	}
	return nil
}

func (m *memStore) Save(name string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.saved[name] = data
	return nil
}

type fakeGateway struct {
	mu             sync.Mutex
	nextID         int
	names          map[string]string
	parents        map[string]string
	granted        []string
	revoked        []string
	deleted        []string
	summaries      []string
	memberChannels map[string]string
	history        map[string][]HistoryMessage
	renameErr      error
	createErr      error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		names:          make(map[string]string),
		parents:        make(map[string]string),
		memberChannels: make(map[string]string),
		history:        make(map[string][]HistoryMessage),
	}
}

func (f *fakeGateway) CreateTicketChannel(guildID, name, ownerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("ch-%d", f.nextID)
	f.names[id] = name
	return id, nil
}

func (f *fakeGateway) RenameChannel(channelID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renameErr != nil {
		return f.renameErr
	}
	f.names[channelID] = name
	return nil
}

func (f *fakeGateway) MoveChannel(channelID, categoryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parents[channelID] = categoryID
	return nil
}

func (f *fakeGateway) GrantView(channelID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.granted = append(f.granted, channelID+"/"+userID)
	return nil
}

func (f *fakeGateway) RevokeView(channelID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, channelID+"/"+userID)
	return nil
}

func (f *fakeGateway) DeleteChannel(channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelID)
	return nil
}

func (f *fakeGateway) MemberTicketChannel(guildID, userID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.memberChannels[guildID+"/"+userID]
	return id, ok
}

func (f *fakeGateway) ChannelHistory(channelID string, limit int) ([]HistoryMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[channelID], nil
}

func (f *fakeGateway) PostSummary(channelID string, session *entity.TicketSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, channelID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Zero delays run the deferred close and delete steps synchronously.
func newTestService(gw *fakeGateway) *Service {
	return New(newMemStore(), gw, Config{
		CategoryID:        "cat-active",
		ArchiveCategoryID: "cat-archive",
	}, testLogger())
}

func openTicket(t *testing.T, s *Service) *entity.TicketSession {
	t.Helper()
	session, err := s.Open("g1", "owner1", "Alice Smith")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return session
}

func TestOpenTicket(t *testing.T) {
	gw := newFakeGateway()
	s := newTestService(gw)

	session := openTicket(t, s)

	if session.Phase != entity.PhaseAwaitingService {
		t.Errorf("phase = %s, want awaiting-service", session.Phase)
	}
	if got := gw.names[session.ChannelID]; got != "ticket-alice-smith" {
		t.Errorf("channel name = %q, want ticket-alice-smith", got)
	}
	if s.OpenCount() != 1 {
		t.Errorf("open count = %d, want 1", s.OpenCount())
	}
}

func TestOpenRefusesSecondTicket(t *testing.T) {
	gw := newFakeGateway()
	s := newTestService(gw)
	session := openTicket(t, s)

	_, err := s.Open("g1", "owner1", "Alice Smith")
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.ChannelID != session.ChannelID {
		t.Errorf("duplicate points at %q, want %q", dup.ChannelID, session.ChannelID)
	}
}

func TestOpenLegacyChannelFallback(t *testing.T) {
	gw := newFakeGateway()
	gw.memberChannels["g1/owner1"] = "legacy-ch"
	s := newTestService(gw)

	_, err := s.Open("g1", "owner1", "Alice")
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.ChannelID != "legacy-ch" {
		t.Errorf("duplicate points at %q, want legacy-ch", dup.ChannelID)
	}
}

func TestSelectServiceAndCaptureOrder(t *testing.T) {
	gw := newFakeGateway()
	s := newTestService(gw)
	session := openTicket(t, s)

	if err := s.SelectService(session.ChannelID, "Valorant Points"); err != nil {
		t.Fatal(err)
	}
	if session.Phase != entity.PhaseServiceSelected {
		t.Errorf("phase = %s, want service-selected", session.Phase)
	}

	got, err := s.CaptureOrder(session.ChannelID, entity.OrderDetails{
		Package: "10,000 VP",
		Payment: "PayPal",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Phase != entity.PhaseOrderCaptured {
		t.Errorf("phase = %s, want order-captured", got.Phase)
	}
	if got.Order.Reference == "" {
		t.Error("order reference not assigned")
	}
	if name := gw.names[session.ChannelID]; name != "valorant-points-alice-smith" {
		t.Errorf("channel name = %q, want valorant-points-alice-smith", name)
	}
}

func TestCaptureOrderValidation(t *testing.T) {
	gw := newFakeGateway()
	s := newTestService(gw)
	session := openTicket(t, s)

	if _, err := s.CaptureOrder(session.ChannelID, entity.OrderDetails{Package: "10k"}); err == nil {
		t.Error("missing payment must be rejected")
	}
	if _, err := s.CaptureOrder(session.ChannelID, entity.OrderDetails{Payment: "PayPal"}); err == nil {
		t.Error("missing package must be rejected")
	}
}

func TestCaptureOrderSurvivesRenameFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.renameErr = errors.New("rate limited")
	s := newTestService(gw)
	session := openTicket(t, s)

	got, err := s.CaptureOrder(session.ChannelID, entity.OrderDetails{
		Package: "10,000 VP",
		Payment: "PayPal",
	})
	if err != nil {
		t.Fatalf("cosmetic rename failure must not fail the capture: %v", err)
	}
	if got.Phase != entity.PhaseOrderCaptured {
		t.Errorf("phase = %s, want order-captured", got.Phase)
	}
}

func TestCloseRequestAndCancel(t *testing.T) {
	gw := newFakeGateway()
	s := newTestService(gw)
	session := openTicket(t, s)
	_ = s.SelectService(session.ChannelID, "VP")

	if err := s.RequestClose(session.ChannelID); err != nil {
		t.Fatal(err)
	}
	if session.Phase != entity.PhaseCloseRequested {
		t.Errorf("phase = %s, want close-requested", session.Phase)
	}

	if err := s.CancelClose(session.ChannelID); err != nil {
		t.Fatal(err)
	}
	if session.Phase != entity.PhaseServiceSelected {
		t.Errorf("cancel must restore the pre-request phase, got %s", session.Phase)
	}

	if err := s.CancelClose(session.ChannelID); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("cancel without pending request: expected ErrWrongPhase, got %v", err)
	}
}

func TestConfirmClose(t *testing.T) {
	gw := newFakeGateway()
	s := newTestService(gw)
	session := openTicket(t, s)
	_ = s.RequestClose(session.ChannelID)

	s.ConfirmClose(session.ChannelID, "staff1")

	if session.Phase != entity.PhaseClosed {
		t.Fatalf("phase = %s, want closed", session.Phase)
	}
	if session.ClosedBy != "staff1" {
		t.Errorf("closed_by = %q, want staff1", session.ClosedBy)
	}
	if len(gw.revoked) != 1 || gw.revoked[0] != session.ChannelID+"/owner1" {
		t.Errorf("owner view not revoked: %v", gw.revoked)
	}
	if gw.parents[session.ChannelID] != "cat-archive" {
		t.Errorf("channel not archived, parent = %q", gw.parents[session.ChannelID])
	}
	if len(gw.summaries) != 1 {
		t.Errorf("summaries = %v, want one", gw.summaries)
	}
	if s.OpenCount() != 0 {
		t.Errorf("open count = %d, want 0", s.OpenCount())
	}
}

func TestConfirmCloseIsIdempotent(t *testing.T) {
	gw := newFakeGateway()
	s := newTestService(gw)
	session := openTicket(t, s)

	s.ConfirmClose(session.ChannelID, "staff1")
	s.ConfirmClose(session.ChannelID, "staff2")

	if len(gw.revoked) != 1 {
		t.Errorf("revoke ran %d times, want 1", len(gw.revoked))
	}
	if session.ClosedBy != "staff1" {
		t.Errorf("closed_by = %q, want the first closer", session.ClosedBy)
	}
}

func TestCloseUnknownChannelReconstructsFromHistory(t *testing.T) {
	gw := newFakeGateway()
	gw.history["mystery"] = []HistoryMessage{
		{FromBot: false, Title: "", Fields: map[string]string{}},
		{FromBot: true, Title: OrderMarker, Fields: map[string]string{
			"Customer": "<@u9>",
			"Package":  "10,000 VP",
			"Payment":  "PayPal",
		}},
	}
	s := newTestService(gw)

	s.ConfirmClose("mystery", "staff1")

	session, ok := s.Session("mystery")
	if !ok {
		t.Fatal("reconstructed session not stored")
	}
	if session.OwnerID != "u9" {
		t.Errorf("owner = %q, want u9", session.OwnerID)
	}
	if session.Service != "10,000 VP" {
		t.Errorf("service = %q, want the package", session.Service)
	}
	if len(gw.revoked) != 1 || gw.revoked[0] != "mystery/u9" {
		t.Errorf("reconstructed owner's view not revoked: %v", gw.revoked)
	}
}

func TestCloseUnknownChannelWithoutHistory(t *testing.T) {
	gw := newFakeGateway()
	s := newTestService(gw)

	s.ConfirmClose("bare", "staff1")

	session, ok := s.Session("bare")
	if !ok {
		t.Fatal("fallback session not stored")
	}
	if session.OwnerName != UnknownOwner || session.Service != GeneralSupport {
		t.Errorf("fallback labels wrong: %+v", session)
	}
	if len(gw.revoked) != 0 {
		t.Errorf("no owner to revoke, got %v", gw.revoked)
	}
	if gw.parents["bare"] != "cat-archive" {
		t.Error("archive move must still run")
	}
}

func TestReopen(t *testing.T) {
	gw := newFakeGateway()
	s := newTestService(gw)
	session := openTicket(t, s)

	if err := s.Reopen(session.ChannelID); !errors.Is(err, ErrNotClosed) {
		t.Fatalf("reopen of open ticket: expected ErrNotClosed, got %v", err)
	}

	_, err := s.CaptureOrder(session.ChannelID, entity.OrderDetails{Package: "10k VP", Payment: "PayPal"})
	if err != nil {
		t.Fatal(err)
	}
	s.ConfirmClose(session.ChannelID, "staff1")

	if err := s.Reopen(session.ChannelID); err != nil {
		t.Fatal(err)
	}
	if session.Phase != entity.PhaseOrderCaptured {
		t.Errorf("phase = %s, want order-captured restored", session.Phase)
	}
	if len(gw.granted) != 1 || gw.granted[0] != session.ChannelID+"/owner1" {
		t.Errorf("owner view not restored: %v", gw.granted)
	}
	if gw.parents[session.ChannelID] != "cat-active" {
		t.Errorf("channel not unarchived, parent = %q", gw.parents[session.ChannelID])
	}
}

func TestDeleteRequiresClosed(t *testing.T) {
	gw := newFakeGateway()
	s := newTestService(gw)
	session := openTicket(t, s)

	if err := s.Delete(session.ChannelID); !errors.Is(err, ErrNotClosed) {
		t.Fatalf("expected ErrNotClosed, got %v", err)
	}
	if err := s.Delete("unknown"); !errors.Is(err, ErrNotTicket) {
		t.Fatalf("expected ErrNotTicket, got %v", err)
	}
}

func TestDeleteRemovesChannelAndSession(t *testing.T) {
	gw := newFakeGateway()
	s := newTestService(gw)
	session := openTicket(t, s)
	s.ConfirmClose(session.ChannelID, "staff1")

	if err := s.Delete(session.ChannelID); err != nil {
		t.Fatal(err)
	}
	if len(gw.deleted) != 1 || gw.deleted[0] != session.ChannelID {
		t.Errorf("channel not deleted: %v", gw.deleted)
	}
	if _, ok := s.Session(session.ChannelID); ok {
		t.Error("session must be removed after delete")
	}
}

func TestOpenAgainAfterClose(t *testing.T) {
	gw := newFakeGateway()
	s := newTestService(gw)
	session := openTicket(t, s)
	s.ConfirmClose(session.ChannelID, "staff1")

	second, err := s.Open("g1", "owner1", "Alice Smith")
	if err != nil {
		t.Fatalf("closed ticket must free the slot: %v", err)
	}
	if second.ChannelID == session.ChannelID {
		t.Error("expected a fresh channel")
	}
}
