package command

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/najoast/courier/comms"
	"github.com/najoast/courier/markup"
	"github.com/najoast/courier/pose"
)

const (
	msgPageNoTarget  = "Who do you want to page?"
	msgPageNotFound  = "No one found to page."
	msgPageNoBody    = "What do you want to page?"
	msgPageNone      = "You haven't paged anyone yet."
	msgPageUsage     = "Usage: pages [number]"
	msgPageHeader    = "Your latest pages:"
	msgSendFailed    = "Your message could not be sent."
	msgHistoryFailed = "Your pages could not be read right now."
)

// cmdPage sends a page, reports the last one or lists recent ones.
//
// A bare "page" and "page/last" report the last page. "pages" and "page/list"
// list history. Anything else sends; without "=" the whole argument is the
// message and the last paged recipients get it.
func cmdPage(in *Interpreter, inv *Invocation) {
	switch {
	case inv.HasSwitch("last") || (inv.Name != "pages" && inv.Args == "" && len(inv.Switches) == 0):
		in.pageLast(inv)
	case inv.HasSwitch("list") || (inv.Name == "pages" && !strings.Contains(inv.Args, "=")):
		in.pageList(inv)
	default:
		in.pageSend(inv)
	}
}

func (in *Interpreter) pageLast(inv *Invocation) {
	rec, ok, err := in.history.LastPaged(inv.Ctx, inv.Caller.Key())
	if err != nil {
		in.log.Error("page last", zap.String("caller", inv.Caller.Key()), zap.Error(err))
		inv.Reply(msgHistoryFailed)
		return
	}
	if !ok {
		inv.Reply(msgPageNone)
		return
	}
	inv.Reply("You last paged %s: %s", rec.ReceiverNames(), rec.Body)
}

func (in *Interpreter) pageList(inv *Invocation) {
	limit, err := comms.ParseLimit(inv.Args, in.settings.HistoryLimit)
	if err != nil {
		inv.Reply(msgPageUsage)
		return
	}

	records, err := in.history.Query(inv.Ctx, inv.Caller.Key(), comms.KindPage, limit, comms.Both)
	if err != nil {
		in.log.Error("page list", zap.String("caller", inv.Caller.Key()), zap.Error(err))
		inv.Reply(msgHistoryFailed)
		return
	}
	if len(records) == 0 {
		inv.Reply(msgPageNone)
		return
	}

	now := in.now()
	inv.Reply(msgPageHeader)
	for _, rec := range records {
		inv.Reply(" %s %s to %s: %s", markup.Stamp(rec.CreatedAt, now), rec.Sender.Name, rec.ReceiverNames(), rec.Body)
	}
}

func (in *Interpreter) pageSend(inv *Invocation) {
	caller := inv.Caller

	var explicit []comms.Target
	list, body, hasTargets := strings.Cut(inv.Args, "=")
	if hasTargets {
		explicit = comms.ParseTargets(list)
		body = strings.TrimSpace(body)
	} else {
		body = inv.Args
	}
	if body == "" {
		inv.Reply(msgPageNoBody)
		return
	}

	var fallback []comms.Target
	if len(explicit) == 0 {
		last, ok, err := in.history.LastPaged(inv.Ctx, caller.Key())
		if err != nil {
			in.log.Error("page fallback", zap.String("caller", caller.Key()), zap.Error(err))
			inv.Reply(msgSendFailed)
			return
		}
		if ok {
			fallback = comms.RefTargets(last.Receivers)
		}
	}

	recipients, err := comms.NewResolver(in.dir).Resolve(explicit, fallback)
	switch {
	case errors.Is(err, comms.ErrNoTarget):
		inv.Reply(msgPageNoTarget)
		return
	case errors.Is(err, comms.ErrTargetNotFound):
		inv.Reply(msgPageNotFound)
		return
	case err != nil:
		in.log.Error("page resolve", zap.String("caller", caller.Key()), zap.Error(err))
		inv.Reply(msgSendFailed)
		return
	}

	parsed, wrapped := pose.Format(body, caller.Name(), in.settings.PageQuote)
	text := "From afar, " + wrapped.Body
	if parsed.Kind.IsSpeech() {
		text = fmt.Sprintf("%s pages: %s", caller.Name(), wrapped.Body)
	}

	report, err := in.dispatcher.Deliver(inv.Ctx, comms.Envelope{
		Kind:       comms.KindPage,
		Sender:     caller,
		Recipients: recipients,
		Body:       parsed.Body,
		Text:       text,
	})
	if err != nil {
		in.log.Error("page send", zap.String("caller", caller.Key()), zap.Error(err))
		inv.Reply(msgSendFailed)
		return
	}

	for _, b := range report.Blocked {
		inv.Reply("You are not allowed to page %s.", b.Actor.Name())
	}
	for _, a := range report.Deferred {
		inv.Reply("%s is offline. They will see your message if they list their pages later.", in.render.Name(a))
	}
	if reached := report.Reached(); len(reached) > 0 {
		inv.Reply("You paged %s with: %s.", markup.Names(in.render, reached), quoted(parsed.Body, in.settings.PageQuote))
	}
}

// quoted marks off a sent body in the sender's confirmation, whatever its kind.
func quoted(body, quote string) string {
	return quote + body + quote
}
