package status

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// Source reports the bot's runtime counters.
type Source interface {
	Uptime() time.Duration
	Guilds() int
	OpenTickets() int
	ActiveGiveaways() int
	TrackedInviters() int
}

type statusResponse struct {
	Status          string `json:"status"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	Guilds          int    `json:"guilds"`
	OpenTickets     int    `json:"open_tickets"`
	ActiveGiveaways int    `json:"active_giveaways"`
	TrackedInviters int    `json:"tracked_inviters"`
}

func Get(_ *slog.Logger, src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, statusResponse{
			Status:          "ok",
			UptimeSeconds:   int64(src.Uptime().Seconds()),
			Guilds:          src.Guilds(),
			OpenTickets:     src.OpenTickets(),
			ActiveGiveaways: src.ActiveGiveaways(),
			TrackedInviters: src.TrackedInviters(),
		})
	}
}
