package client

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"wc-reservation-backend/internal/gateway"
	"wc-reservation-backend/internal/parse"
)

var (
	free     = color.New(color.FgGreen, color.Bold)
	occupied = color.New(color.FgRed, color.Bold)
	faint    = color.New(color.Faint)
)

// Render writes a status block followed by the recent visits. now is used
// for the elapsed time of the current visit.
func Render(w io.Writer, p gateway.StatusPayload, now time.Time) {
	s := p.Status
	if !s.Occupied {
		free.Fprintln(w, "WC is FREE")
	} else {
		occupied.Fprint(w, "WC is OCCUPIED")
		if s.Handle != nil {
			fmt.Fprintf(w, " by %s", who(deref(s.Glyph), *s.Handle))
		}
		if s.OccupiedSince != nil {
			since := s.OccupiedSince.Local()
			fmt.Fprintf(w, " since %s (%d min)", since.Format("15:04"), int(now.Sub(*s.OccupiedSince).Minutes()))
		}
		fmt.Fprintln(w)
		if s.FunMessage != nil && *s.FunMessage != "" {
			fmt.Fprintf(w, "  %q\n", *s.FunMessage)
		}
	}

	if len(p.History) == 0 {
		faint.Fprintln(w, "No visits yet.")
		return
	}
	fmt.Fprintln(w, "Recent visits:")
	for _, h := range p.History {
		line := fmt.Sprintf("  %s  %-20s %3d min", h.StartedAt.Local().Format("Jan 02 15:04"), who(h.Glyph, h.Handle), h.DurationMinutes)
		if h.AutoReleased {
			line += faint.Sprint(" (auto)")
		}
		fmt.Fprintln(w, line)
	}
}

// RenderEvent writes a one-line description of a non-status event.
func RenderEvent(w io.Writer, ev Event) {
	switch {
	case ev.Released != nil:
		fmt.Fprintf(w, "%s released the WC after %d min\n", who(ev.Released.Glyph, ev.Released.Handle), ev.Released.Duration)
	case ev.AutoReleased != nil:
		fmt.Fprintf(w, "user %d was released automatically after %d min\n", ev.AutoReleased.UserID, ev.AutoReleased.Duration)
	case ev.Error != "":
		occupied.Fprintf(w, "error: %s\n", ev.Error)
	case ev.Ack != nil:
		fmt.Fprintf(w, "%s\n", ev.Name)
	}
}

// who prefixes the handle with its glyph unless the glyph is an image URL.
func who(glyph, handle string) string {
	if glyph == "" || parse.IsAvatarURL(glyph) {
		return handle
	}
	return glyph + " " + handle
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
