// Package markup renders names and timestamps for session output.
package markup

import (
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	onlineColor  = lipgloss.Color("2") // green
	offlineColor = lipgloss.Color("1") // red
	noticeColor  = lipgloss.Color("3") // yellow
)

// Presence is anything with a display name and an online flag.
type Presence interface {
	Name() string
	IsOnline() bool
}

// Renderer styles text for telnet sessions. Its output does not depend on the
// server's own terminal.
type Renderer struct {
	online  lipgloss.Style
	offline lipgloss.Style
	notice  lipgloss.Style
}

// NewRenderer returns a renderer emitting basic ANSI colours, or plain text
// when colour is false.
func NewRenderer(colour bool) *Renderer {
	r := lipgloss.NewRenderer(io.Discard)
	if colour {
		r.SetColorProfile(termenv.ANSI)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{
		online:  r.NewStyle().Foreground(onlineColor),
		offline: r.NewStyle().Foreground(offlineColor),
		notice:  r.NewStyle().Foreground(noticeColor).Bold(true),
	}
}

// Name renders p's name coloured by presence.
func (r *Renderer) Name(p Presence) string {
	if p.IsOnline() {
		return r.online.Render(p.Name())
	}
	return r.offline.Render(p.Name())
}

// Names renders and comma-joins the names of ps.
func Names[P Presence](r *Renderer, ps []P) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = r.Name(p)
	}
	return strings.Join(parts, ", ")
}

// Notice highlights a server notice.
func (r *Renderer) Notice(text string) string {
	return r.notice.Render(text)
}

// Stamp formats t relative to now: the time of day with seconds within the
// last hour, without seconds earlier the same day, the month and day earlier
// the same year and the full date otherwise.
func Stamp(t, now time.Time) string {
	t = t.In(now.Location())
	switch {
	case now.Sub(t) < time.Hour && !t.After(now):
		return t.Format("15:04:05")
	case sameDay(t, now):
		return t.Format("15:04")
	case t.Year() == now.Year():
		return t.Format("Jan 02")
	default:
		return t.Format("2006-01-02")
	}
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
