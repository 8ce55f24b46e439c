package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"karybot/entity"
	"karybot/internal/catalog"
)

const (
	colorBrand   = 0xfa4454
	colorSuccess = 0x2ecc71
	colorNeutral = 0x95a5a6
	colorGold    = 0xf1c40f

	embedFooter = "Karys Shop | Your trusted Valorant Points provider"
)

func footer() *discordgo.MessageEmbedFooter {
	return &discordgo.MessageEmbedFooter{Text: embedFooter}
}

func formatVP(points int) string {
	return catalog.FormatPoints(points)
}

func (b *Bot) priceListEmbed() *discordgo.MessageEmbed {
	var sb strings.Builder
	for _, item := range b.catalog.Items() {
		status := "✅"
		if !item.InStock {
			status = "❌"
		}
		sb.WriteString(fmt.Sprintf("%s **%s VP** — $%d / %d MAD\n", status, formatVP(item.Points), item.USD, item.MAD))
	}
	sb.WriteString(fmt.Sprintf("\nUse `%sorder <amount>` or open a ticket to buy.", b.conf.Discord.Prefix))
	return &discordgo.MessageEmbed{
		Title:       "💎 Valorant Points — Price List",
		Description: sb.String(),
		Color:       colorBrand,
		Footer:      footer(),
	}
}

func (b *Bot) stockEmbed() *discordgo.MessageEmbed {
	var sb strings.Builder
	for _, item := range b.catalog.Items() {
		if item.InStock {
			sb.WriteString(fmt.Sprintf("✅ **%s VP** — in stock\n", formatVP(item.Points)))
		} else {
			sb.WriteString(fmt.Sprintf("❌ **%s VP** — out of stock\n", formatVP(item.Points)))
		}
	}
	return &discordgo.MessageEmbed{
		Title:       "📦 Current Stock",
		Description: sb.String(),
		Color:       colorBrand,
		Footer:      footer(),
	}
}

func (b *Bot) helpEmbed() *discordgo.MessageEmbed {
	p := b.conf.Discord.Prefix
	return &discordgo.MessageEmbed{
		Title: "🛒 Shop Commands",
		Description: fmt.Sprintf(
			"`%sprices` — show the price list\n"+
				"`%sstock` — show current stock\n"+
				"`%sorder <amount>` — quick order info for a package\n"+
				"Open a ticket for purchases and support.",
			p, p, p),
		Color:  colorBrand,
		Footer: footer(),
	}
}

func (b *Bot) quickOrderEmbed(item catalog.Item) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "🛍️ Order Info",
		Description: fmt.Sprintf(
			"**%s VP** — $%d / %d MAD\n\nOpen a ticket to complete your purchase.",
			formatVP(item.Points), item.USD, item.MAD),
		Color:  colorSuccess,
		Footer: footer(),
	}
}

func (b *Bot) ticketPanelEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🎫 Support & Orders",
		Description: "Click the button below to open a private ticket with our team.",
		Color:       colorBrand,
		Footer:      footer(),
	}
}

func (b *Bot) ticketWelcomeEmbed(ownerName string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🎫 Ticket opened",
		Description: fmt.Sprintf("Hi **%s**! Pick the service you need below and we'll take it from there.", ownerName),
		Color:       colorBrand,
		Footer:      footer(),
	}
}

// orderConfirmationEmbed is the marker post the close-time history scan
// looks for; the field names feed the reconstruction, keep them stable.
func (b *Bot) orderConfirmationEmbed(session *entity.TicketSession) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Reference", Value: session.Order.Reference, Inline: true},
		{Name: "Customer", Value: fmt.Sprintf("<@%s>", session.OwnerID), Inline: true},
		{Name: "Package", Value: session.Order.Package, Inline: true},
		{Name: "Payment", Value: session.Order.Payment, Inline: true},
	}
	if session.Order.Notes != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Notes", Value: session.Order.Notes})
	}
	return &discordgo.MessageEmbed{
		Title:  "Order Confirmation",
		Color:  colorSuccess,
		Fields: fields,
		Footer: footer(),
	}
}

func (b *Bot) closeSummaryEmbed(session *entity.TicketSession) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Owner", Value: session.OwnerName, Inline: true},
		{Name: "Service", Value: serviceLabel(session), Inline: true},
	}
	if session.ClosedBy != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Closed by", Value: fmt.Sprintf("<@%s>", session.ClosedBy), Inline: true,
		})
	}
	if session.Order != nil {
		fields = append(fields,
			&discordgo.MessageEmbedField{Name: "Reference", Value: session.Order.Reference, Inline: true},
			&discordgo.MessageEmbedField{Name: "Package", Value: session.Order.Package, Inline: true},
			&discordgo.MessageEmbedField{Name: "Payment", Value: session.Order.Payment, Inline: true},
		)
	}
	return &discordgo.MessageEmbed{
		Title:     "🔒 Ticket Closed",
		Color:     colorNeutral,
		Fields:    fields,
		Footer:    footer(),
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func (b *Bot) giveawayEmbed(g *entity.Giveaway, entries int) *discordgo.MessageEmbed {
	desc := fmt.Sprintf("Press 🎉 to enter!\nEnds <t:%d:R>\nHosted by <@%s>", g.EndsAt.Unix(), g.HostID)
	if g.RequiredInvites > 0 {
		desc += fmt.Sprintf("\nRequired invites: **%d**", g.RequiredInvites)
	}
	return &discordgo.MessageEmbed{
		Title:       "🎉 " + g.Prize,
		Description: desc,
		Color:       colorGold,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Entries", Value: fmt.Sprintf("%d", entries), Inline: true},
			{Name: "Winners", Value: fmt.Sprintf("%d", g.WinnerCount), Inline: true},
		},
		Footer: footer(),
	}
}

func (b *Bot) giveawayEndedEmbed(g *entity.Giveaway) *discordgo.MessageEmbed {
	winners := "Nobody entered."
	if len(g.Winners) > 0 {
		winners = mentionList(g.Winners)
	}
	return &discordgo.MessageEmbed{
		Title:       "🎉 " + g.Prize,
		Description: fmt.Sprintf("**Giveaway ended**\nWinner(s): %s\nHosted by <@%s>", winners, g.HostID),
		Color:       colorNeutral,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Entries", Value: fmt.Sprintf("%d", len(g.Participants)), Inline: true},
		},
		Footer: footer(),
	}
}

func serviceLabel(session *entity.TicketSession) string {
	if session.Service != "" {
		return session.Service
	}
	return "general support"
}
