package command

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/najoast/courier/network"
	"github.com/najoast/courier/world"
)

const (
	msgLoginPrompt   = `Type "connect <name>" to begin, or "quit" to leave.`
	msgInvalidName   = "Names are 2 to 24 letters, digits, '-' or '_', starting with a letter."
	msgAlreadyOnline = "That character is already connected."
)

// Gateway adapts network sessions to characters: it handles the login line,
// runs commands through the interpreter and disconnects the character when
// the session ends.
type Gateway struct {
	ctx    context.Context
	in     *Interpreter
	dir    *world.Directory
	banner []string
	log    *zap.Logger
}

// NewGateway returns a network.Handler. ctx is passed to every command.
func NewGateway(ctx context.Context, in *Interpreter, dir *world.Directory, banner string, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	var lines []string
	if banner = strings.TrimRight(banner, "\n"); banner != "" {
		lines = strings.Split(banner, "\n")
	}
	return &Gateway{ctx: ctx, in: in, dir: dir, banner: lines, log: log}
}

// OnConnect sends the banner and login prompt.
func (g *Gateway) OnConnect(conn network.Connection) {
	for _, line := range g.banner {
		conn.Send(line)
	}
	conn.Send(msgLoginPrompt)
}

// OnLine logs the session in or runs a command for its character.
func (g *Gateway) OnLine(conn network.Connection, line string) {
	c, ok := conn.UserData().(*world.Character)
	if !ok {
		g.login(conn, line)
		return
	}

	res := g.in.Execute(g.ctx, c, line)
	if len(res.Lines) > 0 {
		// One mailbox entry keeps a multi-line reply together.
		if err := c.Notify(strings.Join(res.Lines, "\r\n")); err != nil {
			g.log.Warn("reply dropped", zap.String("name", c.Name()), zap.Error(err))
		}
	}
	if res.Quit {
		if err := c.Kick(""); err != nil {
			conn.Close()
		}
	}
}

// OnDisconnect takes the character offline.
func (g *Gateway) OnDisconnect(conn network.Connection, err error) {
	if err != nil {
		g.log.Debug("session error", zap.String("conn", conn.ID()), zap.Error(err))
	}
	if c, ok := conn.UserData().(*world.Character); ok {
		g.dir.Disconnect(c)
	}
}

func (g *Gateway) login(conn network.Connection, line string) {
	verb, name, _ := strings.Cut(strings.TrimSpace(line), " ")
	name = strings.TrimSpace(name)

	switch {
	case strings.EqualFold(verb, "quit"):
		conn.Send("Goodbye.")
		conn.Close()
		return
	case !strings.EqualFold(verb, "connect") || name == "":
		conn.Send(msgLoginPrompt)
		return
	}

	c, err := g.dir.Connect(name, conn)
	switch {
	case errors.Is(err, world.ErrInvalidName):
		conn.Send(msgInvalidName)
		return
	case errors.Is(err, world.ErrAlreadyConnected):
		conn.Send(msgAlreadyOnline)
		return
	case err != nil:
		g.log.Error("login failed", zap.String("name", name), zap.Error(err))
		conn.Send("Login failed, please try again later.")
		return
	}

	conn.SetUserData(c)
	c.Notify("Welcome, " + c.Name() + `. Type "help" for a list of commands.`)
}
