package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"karybot/entity"
	"karybot/internal/invites"
	"karybot/internal/tickets"
)

// Adapters between the service interfaces and discordgo. The services
// stay free of platform types; everything Discord-shaped lives here.

// --- invites.InviteLister ---

func (b *Bot) GuildInvites(guildID string) ([]invites.InviteUse, error) {
	list, err := b.session.GuildInvites(guildID)
	if err != nil {
		return nil, fmt.Errorf("listing guild invites: %w", err)
	}
	uses := make([]invites.InviteUse, 0, len(list))
	for _, inv := range list {
		if inv.Inviter == nil {
			continue
		}
		uses = append(uses, invites.InviteUse{
			Code:      inv.Code,
			InviterID: inv.Inviter.ID,
			Uses:      inv.Uses,
		})
	}
	return uses, nil
}

// --- giveaway.Announcer ---

func (b *Bot) AnnounceGiveaway(g *entity.Giveaway) (string, error) {
	msg, err := b.session.ChannelMessageSendComplex(g.ChannelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{b.giveawayEmbed(g, 0)},
		Components: giveawayComponents(),
	})
	if err != nil {
		return "", fmt.Errorf("posting giveaway announcement: %w", err)
	}
	return msg.ID, nil
}

func (b *Bot) UpdateEntryCount(g *entity.Giveaway) error {
	embeds := []*discordgo.MessageEmbed{b.giveawayEmbed(g, len(g.Participants))}
	_, err := b.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:      g.MessageID,
		Channel: g.ChannelID,
		Embeds:  &embeds,
	})
	return err
}

func (b *Bot) MarkEnded(g *entity.Giveaway) error {
	embeds := []*discordgo.MessageEmbed{b.giveawayEndedEmbed(g)}
	components := []discordgo.MessageComponent{}
	_, err := b.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         g.MessageID,
		Channel:    g.ChannelID,
		Embeds:     &embeds,
		Components: &components,
	})
	return err
}

func (b *Bot) AnnounceWinners(g *entity.Giveaway, winners []string, reroll bool) error {
	var text string
	switch {
	case len(winners) == 0:
		text = fmt.Sprintf("Nobody entered the giveaway for **%s** — no winners this time.", g.Prize)
	case reroll:
		text = fmt.Sprintf("🎉 Reroll! New winner(s) for **%s**: %s", g.Prize, mentionList(winners))
	default:
		text = fmt.Sprintf("🎉 Congratulations %s! You won **%s**!", mentionList(winners), g.Prize)
	}
	_, err := b.session.ChannelMessageSend(g.ChannelID, text)
	return err
}

func giveawayComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Enter",
				Style:    discordgo.PrimaryButton,
				CustomID: cidGiveawayJoin,
				Emoji:    &discordgo.ComponentEmoji{Name: "🎉"},
			},
		}},
	}
}

// --- tickets.Gateway ---

func (b *Bot) CreateTicketChannel(guildID, name, ownerID string) (string, error) {
	overwrites := []*discordgo.PermissionOverwrite{
		{
			ID:   guildID, // @everyone shares the guild ID
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
		{
			ID:    ownerID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory,
		},
	}
	for _, roleID := range b.conf.Discord.StaffRoles {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    roleID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory,
		})
	}

	ch, err := b.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             b.conf.Discord.TicketCategory,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

func (b *Bot) RenameChannel(channelID, name string) error {
	_, err := b.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name})
	return err
}

func (b *Bot) MoveChannel(channelID, categoryID string) error {
	_, err := b.session.ChannelEdit(channelID, &discordgo.ChannelEdit{ParentID: categoryID})
	return err
}

func (b *Bot) GrantView(channelID, userID string) error {
	return b.session.ChannelPermissionSet(
		channelID, userID, discordgo.PermissionOverwriteTypeMember,
		discordgo.PermissionViewChannel|discordgo.PermissionSendMessages|discordgo.PermissionReadMessageHistory, 0,
	)
}

func (b *Bot) RevokeView(channelID, userID string) error {
	return b.session.ChannelPermissionDelete(channelID, userID)
}

func (b *Bot) DeleteChannel(channelID string) error {
	_, err := b.session.ChannelDelete(channelID)
	return err
}

// MemberTicketChannel scans the ticket category for a channel carrying a
// member view overwrite for the user. Covers channels created before
// sessions were persisted.
func (b *Bot) MemberTicketChannel(guildID, userID string) (string, bool) {
	channels, err := b.session.GuildChannels(guildID)
	if err != nil {
		return "", false
	}
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		if b.conf.Discord.TicketCategory != "" && ch.ParentID != b.conf.Discord.TicketCategory {
			continue
		}
		for _, ow := range ch.PermissionOverwrites {
			if ow.Type == discordgo.PermissionOverwriteTypeMember &&
				ow.ID == userID &&
				ow.Allow&discordgo.PermissionViewChannel != 0 {
				return ch.ID, true
			}
		}
	}
	return "", false
}

// ChannelHistory returns up to limit messages, oldest first, flattened to
// what the close-time extraction needs.
func (b *Bot) ChannelHistory(channelID string, limit int) ([]tickets.HistoryMessage, error) {
	raw, err := b.session.ChannelMessages(channelID, limit, "", "", "")
	if err != nil {
		return nil, err
	}
	history := make([]tickets.HistoryMessage, 0, len(raw))
	// ChannelMessages returns newest first.
	for idx := len(raw) - 1; idx >= 0; idx-- {
		msg := raw[idx]
		hm := tickets.HistoryMessage{
			FromBot: msg.Author != nil && msg.Author.Bot,
			Fields:  make(map[string]string),
		}
		if len(msg.Embeds) > 0 {
			embed := msg.Embeds[0]
			hm.Title = embed.Title
			for _, f := range embed.Fields {
				hm.Fields[f.Name] = f.Value
			}
		}
		history = append(history, hm)
	}
	return history, nil
}

func (b *Bot) PostSummary(channelID string, session *entity.TicketSession) error {
	_, err := b.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{b.closeSummaryEmbed(session)},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Reopen", Style: discordgo.SuccessButton, CustomID: cidTicketReopen},
				discordgo.Button{Label: "Delete", Style: discordgo.DangerButton, CustomID: cidTicketDelete},
				discordgo.Button{Label: "Rename", Style: discordgo.SecondaryButton, CustomID: cidTicketRename},
			}},
		},
	})
	if err != nil {
		return err
	}
	if b.conf.Discord.LogChannel != "" {
		_, _ = b.session.ChannelMessageSendEmbed(b.conf.Discord.LogChannel, b.closeSummaryEmbed(session))
	}
	return nil
}

func mentionList(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += "<@" + id + ">"
	}
	return out
}
