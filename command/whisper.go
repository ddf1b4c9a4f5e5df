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
	msgWhisperNoTarget = "Who do you want to whisper to?"
	msgWhisperNotFound = "No one here by that name."
	msgWhisperNoBody   = "What do you want to whisper?"
	msgWhisperNone     = "You haven't whispered to anyone yet."
)

// cmdWhisper sends a private message to characters in the caller's room.
// Without "=" the message goes to whoever was whispered to last this session.
func cmdWhisper(in *Interpreter, inv *Invocation) {
	caller := inv.Caller
	session := caller.Session()
	if session == nil {
		return
	}

	if inv.Args == "" {
		if list, ok := session.LastWhisper(); ok {
			inv.Reply("You last whispered to %s.", list)
		} else {
			inv.Reply(msgWhisperNone)
		}
		return
	}

	list, body, hasTargets := strings.Cut(inv.Args, "=")
	if !hasTargets {
		list, body = "", inv.Args
	}
	list, body = strings.TrimSpace(list), strings.TrimSpace(body)
	if body == "" {
		inv.Reply(msgWhisperNoBody)
		return
	}

	explicit := comms.ParseTargets(list)
	var fallback []comms.Target
	if len(explicit) == 0 {
		if last, ok := session.LastWhisper(); ok {
			list = last
			fallback = comms.ParseTargets(last)
		}
	}

	recipients, err := comms.NewResolver(in.dir.RoomLookup(caller.Room())).Resolve(explicit, fallback)
	switch {
	case errors.Is(err, comms.ErrNoTarget):
		inv.Reply(msgWhisperNoTarget)
		return
	case errors.Is(err, comms.ErrTargetNotFound):
		inv.Reply(msgWhisperNotFound)
		return
	case err != nil:
		in.log.Error("whisper resolve", zap.String("caller", caller.Key()), zap.Error(err))
		inv.Reply(msgSendFailed)
		return
	}

	parsed, wrapped := pose.Format(body, caller.Name(), in.settings.WhisperQuote)
	text := "(whisper) " + wrapped.Body
	if parsed.Kind.IsSpeech() {
		text = fmt.Sprintf("%s whispers: %s", caller.Name(), wrapped.Body)
	}

	report, err := in.dispatcher.Deliver(inv.Ctx, comms.Envelope{
		Kind:       comms.KindWhisper,
		Sender:     caller,
		Recipients: recipients,
		Body:       parsed.Body,
		Text:       text,
	})
	if err != nil {
		in.log.Error("whisper send", zap.String("caller", caller.Key()), zap.Error(err))
		inv.Reply(msgSendFailed)
		return
	}
	session.SetLastWhisper(list)

	for _, b := range report.Blocked {
		inv.Reply("You are not allowed to whisper to %s.", b.Actor.Name())
	}
	for _, a := range report.Deferred {
		inv.Reply("%s is no longer here.", a.Name())
	}
	if reached := report.Reached(); len(reached) > 0 {
		inv.Reply("You whisper to %s: %s.", markup.Names(in.render, reached), quoted(parsed.Body, in.settings.WhisperQuote))
	}
}
