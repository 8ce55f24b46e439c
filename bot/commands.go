package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"karybot/internal/giveaway"
	"karybot/lib/clock"
	"karybot/lib/sl"
)

var adminPerm = int64(discordgo.PermissionAdministrator)

func slashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "post",
			Description: "Post the price list",
		},
		{
			Name:        "invites",
			Description: "Check invite counts",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to check (defaults to you)"},
			},
		},
		{
			Name:                     "ticketpanel",
			Description:              "Post the ticket panel in this channel",
			DefaultMemberPermissions: &adminPerm,
		},
		{
			Name:                     "chance",
			Description:              "Grant extra giveaway chances to a user",
			DefaultMemberPermissions: &adminPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Recipient", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "Chances to add", Required: true},
			},
		},
		{
			Name:                     "giveaway",
			Description:              "Giveaway management",
			DefaultMemberPermissions: &adminPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name: "start", Description: "Start a giveaway in this channel",
					Type: discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "duration", Description: "Duration, e.g. 10m, 2h, 1d", Required: true},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "winners", Description: "Number of winners", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "prize", Description: "Prize", Required: true},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "invites", Description: "Required invites to enter"},
					},
				},
				{
					Name: "end", Description: "End a giveaway now",
					Type: discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "message-id", Description: "Announcement message ID", Required: true},
					},
				},
				{
					Name: "reroll", Description: "Redraw winners",
					Type: discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "message-id", Description: "Announcement message ID", Required: true},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "winners", Description: "How many to redraw"},
					},
				},
			},
		},
	}
}

func (b *Bot) registerCommands(s *discordgo.Session) {
	for _, cmd := range slashCommands() {
		if _, err := s.ApplicationCommandCreate(s.State.User.ID, "", cmd); err != nil {
			b.log.With(slog.String("command", cmd.Name)).Warn("registering command", sl.Err(err))
		}
	}
}

func (b *Bot) routeCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	switch data.Name {
	case "post":
		b.respondEmbed(s, i, b.priceListEmbed(), false)
	case "invites":
		b.handleInvitesCommand(s, i)
	case "ticketpanel":
		if !b.requireAdmin(s, i) {
			return
		}
		b.handleTicketPanel(s, i)
	case "chance":
		if !b.requireAdmin(s, i) {
			return
		}
		b.handleChance(s, i)
	case "giveaway":
		if !b.requireAdmin(s, i) {
			return
		}
		b.handleGiveawayCommand(s, i)
	}
}

func (b *Bot) handleInvitesCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	target := interactionUser(i)
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "user" {
			target = opt.UserValue(s)
		}
	}
	if target == nil {
		return
	}
	rec := b.invites.Record(target.ID)
	b.respond(s, i, fmt.Sprintf(
		"**%s** has **%d** invites (regular: %d, bonus: %d, fake: %d, leaves: %d)",
		target.Username, rec.Effective(), rec.Regular, rec.Bonus, rec.Fake, rec.Leaves,
	), true)
}

func (b *Bot) handleChance(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i.ApplicationCommandData().Options)
	target := opts["user"].UserValue(s)
	amount := int(opts["amount"].IntValue())
	b.invites.GrantBonus(target.ID, amount)
	b.respond(s, i, fmt.Sprintf("Granted **%+d** chances to <@%s>.", amount, target.ID), false)
}

func (b *Bot) handleGiveawayCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sub := i.ApplicationCommandData().Options[0]
	opts := optionMap(sub.Options)

	switch sub.Name {
	case "start":
		required := 0
		if opt, ok := opts["invites"]; ok {
			required = int(opt.IntValue())
		}
		g, err := b.giveaways.Create(
			i.GuildID, i.ChannelID,
			opts["duration"].StringValue(),
			opts["prize"].StringValue(),
			int(opts["winners"].IntValue()),
			required,
			interactionUser(i).ID,
		)
		if err != nil {
			if errors.Is(err, clock.ErrInvalidDuration) {
				b.respond(s, i, "Invalid duration. Use a number followed by s, m, h or d — e.g. `10m`.", true)
				return
			}
			b.respond(s, i, "Could not start the giveaway: "+err.Error(), true)
			return
		}
		b.respond(s, i, fmt.Sprintf("Giveaway started, ends <t:%d:R>.", g.EndsAt.Unix()), true)

	case "end":
		b.giveaways.End(strings.TrimSpace(opts["message-id"].StringValue()))
		b.respond(s, i, "Giveaway ended.", true)

	case "reroll":
		n := 0
		if opt, ok := opts["winners"]; ok {
			n = int(opt.IntValue())
		}
		winners, err := b.giveaways.Reroll(strings.TrimSpace(opts["message-id"].StringValue()), n)
		if err != nil {
			switch {
			case errors.Is(err, giveaway.ErrNotFound):
				b.respond(s, i, "No giveaway with that message ID.", true)
			case errors.Is(err, giveaway.ErrNoParticipants):
				b.respond(s, i, "Nobody entered that giveaway.", true)
			default:
				b.respond(s, i, "Reroll failed: "+err.Error(), true)
			}
			return
		}
		b.respond(s, i, fmt.Sprintf("Rerolled %d winner(s).", len(winners)), true)
	}
}

// routePrefixCommand handles the classic text commands, aliases included.
func (b *Bot) routePrefixCommand(s *discordgo.Session, m *discordgo.MessageCreate, cmd string, args []string) {
	switch cmd {
	case "prices", "price", "prix", "اسعار", "أسعار":
		b.sendEmbed(s, m.ChannelID, b.priceListEmbed())
	case "stock", "inventory", "المخزون", "مخزون":
		b.sendEmbed(s, m.ChannelID, b.stockEmbed())
	case "order":
		b.handleOrderCommand(s, m, args)
	case "post", "منشور":
		b.sendEmbed(s, m.ChannelID, b.priceListEmbed())
	case "help_shop", "shop_help", "مساعدة":
		b.sendEmbed(s, m.ChannelID, b.helpEmbed())
	}
}

func (b *Bot) handleOrderCommand(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) == 0 {
		b.sendText(s, m.ChannelID, "Please specify the amount of Valorant Points you want to order.\nExample: `"+b.conf.Discord.Prefix+"order 10000`")
		return
	}
	item, ok := b.catalog.Lookup(args[0])
	if !ok {
		b.sendText(s, m.ChannelID, "Invalid amount. Use `"+b.conf.Discord.Prefix+"prices` to see available options.")
		return
	}
	if !item.InStock {
		b.sendText(s, m.ChannelID, fmt.Sprintf("%s VP is currently out of stock.", formatVP(item.Points)))
		return
	}
	b.sendEmbed(s, m.ChannelID, b.quickOrderEmbed(item))
}
