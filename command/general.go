package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

func cmdGo(in *Interpreter, inv *Invocation) {
	if inv.Args == "" {
		inv.Reply("Go where?")
		return
	}
	in.dir.Move(inv.Caller, inv.Args)
	inv.Reply("You go to %s.", inv.Args)
}

func cmdWho(in *Interpreter, inv *Invocation) {
	now := in.now()
	online := in.dir.Online()

	inv.Reply("%-24s %-20s %s", "Name", "Room", "Idle")
	for _, c := range online {
		idle := "active"
		if d := c.IdleFor(now); d >= time.Minute {
			idle = strings.TrimSpace(humanize.RelTime(now.Add(-d), now, "", ""))
		}
		inv.Reply("%s %-20s %s", nameColumn(in.render.Name(c), c.Name(), 24), c.Room(), idle)
	}
	inv.Reply("%s online.", humanize.Comma(int64(len(online))))
}

func cmdHelp(in *Interpreter, inv *Invocation) {
	inv.Reply("Commands:")
	for _, cmd := range in.ordered {
		inv.Reply("  %s", cmd.Usage)
	}
	inv.Reply("Start a message with : or ; to pose, or \\\\ for raw text.")
}

func cmdQuit(in *Interpreter, inv *Invocation) {
	inv.Reply("Goodbye.")
	inv.quit = true
}

// nameColumn pads a coloured name; escape codes do not count toward the width.
func nameColumn(rendered, plain string, width int) string {
	if pad := width - len(plain); pad > 0 {
		return rendered + fmt.Sprintf("%*s", pad, "")
	}
	return rendered
}
