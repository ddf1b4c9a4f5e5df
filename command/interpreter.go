// Package command turns input lines into page, whisper and the supporting
// session commands.
package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/najoast/courier/comms"
	"github.com/najoast/courier/markup"
	"github.com/najoast/courier/world"
)

// Handler runs one command invocation.
type Handler func(in *Interpreter, inv *Invocation)

// Command is a registered verb.
type Command struct {
	Name    string
	Aliases []string
	Usage   string
	Handler Handler
}

// Settings holds the tunables the commands read.
type Settings struct {
	HistoryLimit int
	PageQuote    string
	WhisperQuote string
}

// DefaultSettings returns the stock quote characters and history length.
func DefaultSettings() Settings {
	return Settings{
		HistoryLimit: comms.DefaultHistoryLimit,
		PageQuote:    "'",
		WhisperQuote: `"`,
	}
}

// Invocation is one parsed input line and the reply being built for it.
type Invocation struct {
	Ctx      context.Context
	Caller   *world.Character
	Name     string // as typed, lowercased
	Switches []string
	Args     string

	lines []string
	quit  bool
}

// Reply appends a line for the caller.
func (inv *Invocation) Reply(format string, args ...any) {
	if len(args) == 0 {
		inv.lines = append(inv.lines, format)
		return
	}
	inv.lines = append(inv.lines, fmt.Sprintf(format, args...))
}

// HasSwitch checks if the invocation carries the named switch, ignoring case.
func (inv *Invocation) HasSwitch(name string) bool {
	for _, s := range inv.Switches {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// Result is what Execute produced for the caller.
type Result struct {
	Lines []string
	Quit  bool
}

// Interpreter parses lines and runs commands for connected characters.
type Interpreter struct {
	dir        *world.Directory
	dispatcher *comms.Dispatcher
	history    *comms.History
	render     *markup.Renderer
	settings   Settings
	log        *zap.Logger
	now        func() time.Time

	commands map[string]*Command
	ordered  []*Command
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(in *Interpreter) {
		if log != nil {
			in.log = log
		}
	}
}

// WithSettings replaces DefaultSettings.
func WithSettings(s Settings) Option {
	return func(in *Interpreter) {
		in.settings = s
	}
}

// WithRenderer sets the markup renderer; the default is plain text.
func WithRenderer(r *markup.Renderer) Option {
	return func(in *Interpreter) {
		if r != nil {
			in.render = r
		}
	}
}

// WithClock replaces time.Now for transcript stamps and idle times.
func WithClock(now func() time.Time) Option {
	return func(in *Interpreter) {
		if now != nil {
			in.now = now
		}
	}
}

// NewInterpreter wires the built-in commands to dir, dispatcher and history.
func NewInterpreter(dir *world.Directory, dispatcher *comms.Dispatcher, history *comms.History, opts ...Option) *Interpreter {
	in := &Interpreter{
		dir:        dir,
		dispatcher: dispatcher,
		history:    history,
		render:     markup.NewRenderer(false),
		settings:   DefaultSettings(),
		log:        zap.NewNop(),
		now:        time.Now,
		commands:   make(map[string]*Command),
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.settings.HistoryLimit <= 0 {
		in.settings.HistoryLimit = comms.DefaultHistoryLimit
	}

	for _, cmd := range builtins() {
		in.Register(cmd)
	}
	return in
}

// Register adds cmd under its name and aliases, replacing earlier entries.
func (in *Interpreter) Register(cmd *Command) {
	in.commands[strings.ToLower(cmd.Name)] = cmd
	for _, alias := range cmd.Aliases {
		in.commands[strings.ToLower(alias)] = cmd
	}
	in.ordered = append(in.ordered, cmd)
	sort.Slice(in.ordered, func(i, j int) bool { return in.ordered[i].Name < in.ordered[j].Name })
}

// Execute runs one line for caller.
func (in *Interpreter) Execute(ctx context.Context, caller *world.Character, line string) Result {
	line = strings.TrimSpace(line)
	if line == "" {
		return Result{}
	}

	name, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)

	var switches []string
	if parts := strings.Split(name, "/"); len(parts) > 1 {
		name = parts[0]
		switches = parts[1:]
	}
	name = strings.ToLower(name)

	cmd, ok := in.commands[name]
	if !ok {
		return Result{Lines: []string{`Huh?  (Type "help" for help.)`}}
	}

	caller.Touch(in.now())
	inv := &Invocation{
		Ctx:      ctx,
		Caller:   caller,
		Name:     name,
		Switches: switches,
		Args:     args,
	}
	cmd.Handler(in, inv)

	return Result{Lines: inv.lines, Quit: inv.quit}
}

func builtins() []*Command {
	return []*Command{
		{
			Name:    "page",
			Aliases: []string{"p", "tell", "pages"},
			Usage:   "page[/last|/list] [<name>[,<name>...]=]<message>, pages [<number>]",
			Handler: cmdPage,
		},
		{
			Name:    "whisper",
			Aliases: []string{"wh"},
			Usage:   "whisper [<name>[,<name>...]=]<message>",
			Handler: cmdWhisper,
		},
		{Name: "go", Usage: "go <room>", Handler: cmdGo},
		{Name: "who", Usage: "who", Handler: cmdWho},
		{Name: "help", Usage: "help", Handler: cmdHelp},
		{Name: "quit", Aliases: []string{"logout"}, Usage: "quit", Handler: cmdQuit},
	}
}
