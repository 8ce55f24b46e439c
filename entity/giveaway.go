package entity

import "time"

// Giveaway is keyed by the message ID of its announcement post and doubles
// as an audit record: it is never deleted, Ended only ever flips false→true
// and EndsAt is fixed at creation.
type Giveaway struct {
	MessageID       string    `json:"message_id" bson:"message_id"`
	ChannelID       string    `json:"channel_id" bson:"channel_id" validate:"required"`
	GuildID         string    `json:"guild_id" bson:"guild_id"`
	Prize           string    `json:"prize" bson:"prize" validate:"required"`
	WinnerCount     int       `json:"winner_count" bson:"winner_count" validate:"min=1"`
	RequiredInvites int       `json:"required_invites" bson:"required_invites" validate:"min=0"`
	HostID          string    `json:"host_id" bson:"host_id"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
	EndsAt          time.Time `json:"ends_at" bson:"ends_at"`
	Participants    []string  `json:"participants" bson:"participants"`
	Ended           bool      `json:"ended" bson:"ended"`
	Winners         []string  `json:"winners,omitempty" bson:"winners,omitempty"`
}

// HasParticipant reports whether the user already entered.
// Participants is an ordered set, so a linear scan is enough.
func (g *Giveaway) HasParticipant(userID string) bool {
	for _, p := range g.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
