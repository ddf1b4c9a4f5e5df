// Package pose implements the inline pose grammar shared by page and whisper.
//
// A single leading marker selects how a message body is read: quoted speech,
// an emote attributed to the speaker, or raw action text.
package pose

import "strings"

// Kind identifies which pose form a message uses.
type Kind uint8

const (
	// None is plain speech.
	None Kind = iota

	// Exclaim is reserved for an exclamation form. Parse never produces it.
	Exclaim

	// Semicolon attaches the body directly to the actor name (";'s eyes narrow").
	Semicolon

	// Colon is a spaced emote (":waves").
	Colon

	// Backslash is raw action text with no actor attribution, marked by two
	// leading backslashes.
	Backslash

	// Comma keeps the leading comma and follows the actor name (", nods").
	Comma

	// Apostrophe keeps the leading apostrophe ("'s sword gleams").
	Apostrophe
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Exclaim:
		return "exclaim"
	case Semicolon:
		return "semicolon"
	case Colon:
		return "colon"
	case Backslash:
		return "backslash"
	case Comma:
		return "comma"
	case Apostrophe:
		return "apostrophe"
	default:
		return "unknown"
	}
}

// IsSpeech reports whether the kind is quoted speech.
func (k Kind) IsSpeech() bool {
	return k == None
}

// Parsed is the result of reading a raw message through the grammar.
type Parsed struct {
	Kind Kind
	Body string
}

const escape = `\\`

// Parse classifies raw and strips or normalizes its marker. It never fails.
func Parse(raw string) Parsed {
	// The two-character escape is checked before any one-character marker.
	if strings.HasPrefix(raw, escape) {
		return Parsed{Kind: Backslash, Body: raw[len(escape):]}
	}
	if raw == "" {
		return Parsed{Kind: None}
	}

	switch raw[0] {
	case ';':
		return Parsed{Kind: Semicolon, Body: raw[1:]}
	case ':':
		return Parsed{Kind: Colon, Body: " " + strings.TrimSpace(raw[1:])}
	case ',':
		return Parsed{Kind: Comma, Body: raw}
	case '\'':
		return Parsed{Kind: Apostrophe, Body: raw}
	default:
		return Parsed{Kind: None, Body: raw}
	}
}

// PrefixActor attributes an emote to name. Speech and raw action text are
// returned unchanged.
func PrefixActor(p Parsed, name string) Parsed {
	if p.Kind == None || p.Kind == Backslash {
		return p
	}
	p.Body = name + p.Body
	return p
}

// Wrap surrounds speech with quote. Every other kind passes through.
// Applying Wrap twice wraps twice.
func Wrap(p Parsed, quote string) Parsed {
	if p.Kind != None {
		return p
	}
	p.Body = quote + p.Body + quote
	return p
}

// Format runs the full pipeline for one send: parse, attribute, wrap.
// It returns the attributed body before wrapping alongside the wrapped form.
func Format(raw, name, quote string) (parsed Parsed, wrapped Parsed) {
	parsed = PrefixActor(Parse(raw), name)
	return parsed, Wrap(parsed, quote)
}
