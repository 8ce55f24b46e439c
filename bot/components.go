package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"karybot/entity"
	"karybot/internal/giveaway"
	"karybot/internal/tickets"
	"karybot/lib/sl"
)

func (b *Bot) handleTicketPanel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	_, err := s.ChannelMessageSendComplex(i.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{b.ticketPanelEmbed()},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Open Ticket",
					Style:    discordgo.PrimaryButton,
					CustomID: cidTicketOpen,
					Emoji:    &discordgo.ComponentEmoji{Name: "🎫"},
				},
			}},
		},
	})
	if err != nil {
		b.log.Warn("posting ticket panel", sl.Err(err))
		b.respond(s, i, "Could not post the panel here.", true)
		return
	}
	b.respond(s, i, "Ticket panel posted.", true)
}

func (b *Bot) onTicketOpen(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	session, err := b.tickets.Open(i.GuildID, user.ID, user.Username)
	if err != nil {
		var dup *tickets.DuplicateError
		if errors.As(err, &dup) {
			b.respond(s, i, fmt.Sprintf("You already have an open ticket: <#%s>", dup.ChannelID), true)
			return
		}
		b.log.Warn("opening ticket", sl.Err(err))
		b.respond(s, i, "Could not open a ticket, please try again later.", true)
		return
	}

	options := make([]discordgo.SelectMenuOption, 0, len(b.conf.Tickets.Services))
	for _, svc := range b.conf.Tickets.Services {
		options = append(options, discordgo.SelectMenuOption{Label: svc, Value: svc})
	}
	_, err = s.ChannelMessageSendComplex(session.ChannelID, &discordgo.MessageSend{
		Content: fmt.Sprintf("Welcome <@%s>!", user.ID),
		Embeds:  []*discordgo.MessageEmbed{b.ticketWelcomeEmbed(user.Username)},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					CustomID:    cidTicketService,
					Placeholder: "Select a service",
					Options:     options,
				},
			}},
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Close Ticket",
					Style:    discordgo.DangerButton,
					CustomID: cidTicketClose,
					Emoji:    &discordgo.ComponentEmoji{Name: "🔒"},
				},
			}},
		},
	})
	if err != nil {
		b.log.Warn("posting ticket welcome", sl.Err(err))
	}
	b.respond(s, i, fmt.Sprintf("Your ticket is ready: <#%s>", session.ChannelID), true)
}

func (b *Bot) onTicketService(s *discordgo.Session, i *discordgo.InteractionCreate) {
	values := i.MessageComponentData().Values
	if len(values) == 0 {
		return
	}
	service := values[0]
	if err := b.tickets.SelectService(i.ChannelID, service); err != nil {
		b.ticketError(s, i, err)
		return
	}
	b.presentOrderModal(s, i, service)
}

func (b *Bot) presentOrderModal(s *discordgo.Session, i *discordgo.InteractionCreate, service string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: midOrderForm,
			Title:    service + " order",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    "order_package",
						Label:       "Package",
						Style:       discordgo.TextInputShort,
						Placeholder: "e.g. 10000 VP",
						Required:    true,
					},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    "order_payment",
						Label:       "Payment method",
						Style:       discordgo.TextInputShort,
						Placeholder: "e.g. PayPal, bank transfer",
						Required:    true,
					},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  "order_notes",
						Label:     "Notes (optional)",
						Style:     discordgo.TextInputParagraph,
						Required:  false,
						MaxLength: 500,
					},
				}},
			},
		},
	})
	if err != nil {
		b.log.Warn("presenting order modal", sl.Err(err))
	}
}

func (b *Bot) onOrderSubmit(s *discordgo.Session, i *discordgo.InteractionCreate) {
	values := modalValues(i.ModalSubmitData())
	order := entity.OrderDetails{
		Package: strings.TrimSpace(values["order_package"]),
		Payment: strings.TrimSpace(values["order_payment"]),
		Notes:   strings.TrimSpace(values["order_notes"]),
	}
	session, err := b.tickets.CaptureOrder(i.ChannelID, order)
	if err != nil {
		b.ticketError(s, i, err)
		return
	}
	if _, err = s.ChannelMessageSendEmbed(i.ChannelID, b.orderConfirmationEmbed(session)); err != nil {
		b.log.Warn("posting order confirmation", sl.Err(err))
	}
	if b.conf.Discord.PaymentChannel != "" {
		if _, err = s.ChannelMessageSendEmbed(b.conf.Discord.PaymentChannel, b.orderConfirmationEmbed(session)); err != nil {
			b.log.Warn("relaying order to payment channel", sl.Err(err))
		}
	}
	b.respond(s, i, "Order details captured. A staff member will be with you shortly.", true)
}

func (b *Bot) onTicketClose(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := b.tickets.RequestClose(i.ChannelID); err != nil {
		b.ticketError(s, i, err)
		return
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "Are you sure you want to close this ticket?",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.Button{Label: "Close", Style: discordgo.DangerButton, CustomID: cidTicketCloseConfirm},
					discordgo.Button{Label: "Cancel", Style: discordgo.SecondaryButton, CustomID: cidTicketCloseCancel},
				}},
			},
		},
	})
	if err != nil {
		b.log.Warn("presenting close confirmation", sl.Err(err))
	}
}

func (b *Bot) onTicketCloseConfirm(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.tickets.ConfirmClose(i.ChannelID, interactionUser(i).ID)
	b.updateMessage(s, i, "Closing ticket…")
}

func (b *Bot) onTicketCloseCancel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := b.tickets.CancelClose(i.ChannelID); err != nil {
		b.ticketError(s, i, err)
		return
	}
	b.updateMessage(s, i, "Close cancelled.")
}

func (b *Bot) onTicketReopen(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireAdmin(s, i) {
		return
	}
	if err := b.tickets.Reopen(i.ChannelID); err != nil {
		b.ticketError(s, i, err)
		return
	}
	b.respond(s, i, "Ticket reopened.", false)
}

func (b *Bot) onTicketDelete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireAdmin(s, i) {
		return
	}
	if err := b.tickets.Delete(i.ChannelID); err != nil {
		b.ticketError(s, i, err)
		return
	}
	b.respond(s, i, "Ticket scheduled for deletion.", true)
}

func (b *Bot) onTicketRename(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireAdmin(s, i) {
		return
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: midRenameForm,
			Title:    "Rename channel",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID: "rename_name",
						Label:    "New channel name",
						Style:    discordgo.TextInputShort,
						Required: true,
					},
				}},
			},
		},
	})
	if err != nil {
		b.log.Warn("presenting rename modal", sl.Err(err))
	}
}

func (b *Bot) onRenameSubmit(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := strings.TrimSpace(modalValues(i.ModalSubmitData())["rename_name"])
	if name == "" {
		b.respond(s, i, "Name cannot be empty.", true)
		return
	}
	if err := b.tickets.ForceRename(i.ChannelID, name); err != nil {
		b.respond(s, i, "Rename failed: "+err.Error(), true)
		return
	}
	b.respond(s, i, "Channel renamed.", true)
}

func (b *Bot) onGiveawayJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Message == nil {
		return
	}
	userID := interactionUser(i).ID
	err := b.giveaways.Join(i.Message.ID, userID)
	switch {
	case err == nil:
		b.respond(s, i, "You're in! Good luck 🍀", true)
	case errors.Is(err, giveaway.ErrAlreadyJoined):
		b.respond(s, i, "You already entered this giveaway.", true)
	case errors.Is(err, giveaway.ErrAlreadyEnded):
		b.respond(s, i, "This giveaway has already ended.", true)
	case errors.Is(err, giveaway.ErrNotFound):
		b.respond(s, i, "This giveaway is no longer tracked.", true)
	case errors.Is(err, giveaway.ErrInsufficientInvites):
		required := 0
		if g, ok := b.giveaways.Get(i.Message.ID); ok {
			required = g.RequiredInvites
		}
		b.respond(s, i, fmt.Sprintf(
			"You need **%d** invites to enter this giveaway. Use `/invites` to check your count.",
			required,
		), true)
	default:
		b.log.Warn("giveaway join", sl.Err(err))
		b.respond(s, i, "Could not enter the giveaway.", true)
	}
}

func (b *Bot) ticketError(s *discordgo.Session, i *discordgo.InteractionCreate, err error) {
	switch {
	case errors.Is(err, tickets.ErrNotTicket):
		b.respond(s, i, "This channel is not a ticket.", true)
	case errors.Is(err, tickets.ErrNotClosed):
		b.respond(s, i, "The ticket must be closed first.", true)
	case errors.Is(err, tickets.ErrWrongPhase):
		b.respond(s, i, "That action is not available right now.", true)
	default:
		b.log.Warn("ticket action", sl.Err(err))
		b.respond(s, i, "Something went wrong, please try again.", true)
	}
}

func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := make(map[string]string)
	for _, row := range data.Components {
		actions, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range actions.Components {
			if input, ok := comp.(*discordgo.TextInput); ok {
				values[input.CustomID] = input.Value
			}
		}
	}
	return values
}
