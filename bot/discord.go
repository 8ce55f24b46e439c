// Package bot implements the Discord gateway layer.
//
// Architecture overview:
//   - discord.go    — Bot struct, lifecycle, event handlers, dispatch tables
//   - commands.go   — prefix commands (!prices, !stock, !order…) and slash commands
//   - components.go — button/menu/modal handlers for tickets and giveaways
//   - gateway.go    — adapters implementing the service-side gateway interfaces
//   - embeds.go     — embed builders: price list, order confirmation, summaries
//   - helpers.go    — respond/ephemeral/admin-check utilities
//
// Inbound interactions are routed by a stable identifier: slash commands by
// name, components and modals by custom ID through dispatch tables
// registered once at construction.
package bot

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"karybot/internal/catalog"
	"karybot/internal/config"
	"karybot/internal/giveaway"
	"karybot/internal/invites"
	"karybot/internal/tickets"
	"karybot/lib/sl"
)

// Component and modal custom IDs. Discord echoes these back on every
// click/submit; the dispatch tables key on them.
const (
	cidTicketOpen         = "ticket_open"
	cidTicketService      = "ticket_service"
	cidTicketClose        = "ticket_close"
	cidTicketCloseConfirm = "ticket_close_confirm"
	cidTicketCloseCancel  = "ticket_close_cancel"
	cidTicketReopen       = "ticket_reopen"
	cidTicketDelete       = "ticket_delete"
	cidTicketRename       = "ticket_rename"
	cidGiveawayJoin       = "gw_join"
	midOrderForm          = "order_form"
	midRenameForm         = "rename_form"
)

type componentHandler func(s *discordgo.Session, i *discordgo.InteractionCreate)

// Bot is the central gateway instance. It owns the discordgo session and
// routes events to the invite ledger, the giveaway scheduler and the
// ticket machine, which are attached after construction via Connect.
type Bot struct {
	log     *slog.Logger
	session *discordgo.Session
	conf    *config.Config
	catalog *catalog.Catalog

	invites   *invites.Ledger
	giveaways *giveaway.Service
	tickets   *tickets.Service

	components map[string]componentHandler
	modals     map[string]componentHandler

	mu        sync.RWMutex
	guilds    map[string]bool
	startedAt time.Time
}

func New(session *discordgo.Session, conf *config.Config, cat *catalog.Catalog, log *slog.Logger) *Bot {
	b := &Bot{
		log:     log.With(sl.Module("bot")),
		session: session,
		conf:    conf,
		catalog: cat,
		guilds:  make(map[string]bool),
	}
	b.components = map[string]componentHandler{
		cidTicketOpen:         b.onTicketOpen,
		cidTicketService:      b.onTicketService,
		cidTicketClose:        b.onTicketClose,
		cidTicketCloseConfirm: b.onTicketCloseConfirm,
		cidTicketCloseCancel:  b.onTicketCloseCancel,
		cidTicketReopen:       b.onTicketReopen,
		cidTicketDelete:       b.onTicketDelete,
		cidTicketRename:       b.onTicketRename,
		cidGiveawayJoin:       b.onGiveawayJoin,
	}
	b.modals = map[string]componentHandler{
		midOrderForm:  b.onOrderSubmit,
		midRenameForm: b.onRenameSubmit,
	}
	return b
}

// Connect attaches the stateful services. Separate from New because the
// services need the Bot as their gateway collaborator.
func (b *Bot) Connect(ledger *invites.Ledger, giveaways *giveaway.Service, ticketSvc *tickets.Service) {
	b.invites = ledger
	b.giveaways = giveaways
	b.tickets = ticketSvc
}

// Start registers the event handlers and opens the gateway connection.
func (b *Bot) Start() error {
	b.session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildInvites |
		discordgo.IntentMessageContent

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onInteractionCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onGuildMemberRemove)
	b.session.AddHandler(b.onInviteCreate)
	b.session.AddHandler(b.onInviteDelete)

	b.startedAt = time.Now()
	return b.session.Open()
}

func (b *Bot) Stop() {
	b.log.Info("closing gateway connection")
	_ = b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.mu.Lock()
	for _, g := range r.Guilds {
		b.guilds[g.ID] = true
	}
	b.mu.Unlock()

	_ = s.UpdateGameStatus(0, "Karys Shop | !prices")

	for _, g := range r.Guilds {
		b.invites.InitGuild(g.ID)
	}
	b.registerCommands(s)

	b.log.With(
		slog.String("user", r.User.Username),
		slog.Int("guilds", len(r.Guilds)),
	).Info("gateway ready")
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.routeCommand(s, i)
	case discordgo.InteractionMessageComponent:
		id := i.MessageComponentData().CustomID
		if handler, ok := b.components[id]; ok {
			handler(s, i)
			return
		}
		b.log.With(slog.String("custom_id", id)).Warn("unknown component")
	case discordgo.InteractionModalSubmit:
		id := i.ModalSubmitData().CustomID
		if handler, ok := b.modals[id]; ok {
			handler(s, i)
			return
		}
		b.log.With(slog.String("custom_id", id)).Warn("unknown modal")
	}
}

func (b *Bot) onGuildMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	age := time.Duration(0)
	if created, err := discordgo.SnowflakeTimestamp(m.User.ID); err == nil {
		age = time.Since(created)
	}
	b.invites.RecordJoin(m.GuildID, m.User.ID, age)
}

func (b *Bot) onGuildMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	b.invites.RecordLeave(m.User.ID)
}

func (b *Bot) onInviteCreate(_ *discordgo.Session, e *discordgo.InviteCreate) {
	b.invites.InitGuild(e.GuildID)
}

func (b *Bot) onInviteDelete(_ *discordgo.Session, e *discordgo.InviteDelete) {
	b.invites.InitGuild(e.GuildID)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	text := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(text, b.conf.Discord.Prefix) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(text, b.conf.Discord.Prefix))
	if len(fields) == 0 {
		return
	}
	cmd := strings.ToLower(fields[0])
	b.routePrefixCommand(s, m, cmd, fields[1:])
}

// SendLogMessage relays a formatted log line into the configured log
// channel. Implements the slog handler's Sender; must never log through
// slog itself or it would recurse.
func (b *Bot) SendLogMessage(text string) {
	if b.conf.Discord.LogChannel == "" {
		return
	}
	_, _ = b.session.ChannelMessageSend(b.conf.Discord.LogChannel, text)
}

// --- status.Source ---

func (b *Bot) Uptime() time.Duration {
	return time.Since(b.startedAt)
}

func (b *Bot) Guilds() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.guilds)
}

func (b *Bot) OpenTickets() int {
	return b.tickets.OpenCount()
}

func (b *Bot) ActiveGiveaways() int {
	return b.giveaways.Active()
}

func (b *Bot) TrackedInviters() int {
	return b.invites.Tracked()
}
