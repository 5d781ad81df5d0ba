package grammar

import (
	"fmt"
	"strings"
)

// TokenKind tells what produced a [Token].
type TokenKind uint8

const (
	// TokenID is emitted by Basic and Alternative nodes and carries the
	// identifier of the form that matched.
	TokenID TokenKind = iota + 1

	// TokenOptional is emitted when an Optional node consumed one of its
	// forms. It carries the form's text and is mostly useful for
	// diagnostics.
	TokenOptional

	// TokenParameter is emitted by Parametric nodes and carries the
	// parameter name and the words captured verbatim.
	TokenParameter
)

// String returns the lower-case name of the kind.
func (k TokenKind) String() string {
	switch k {
	case TokenID:
		return "id"
	case TokenOptional:
		return "optional"
	case TokenParameter:
		return "parameter"
	default:
		return "unknown"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (k TokenKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (k *TokenKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "id":
		*k = TokenID
	case "optional":
		*k = TokenOptional
	case "parameter":
		*k = TokenParameter
	default:
		return fmt.Errorf("grammar: unknown token kind %q", b)
	}
	return nil
}

// Token is one result of a successful match.
type Token struct {
	Kind TokenKind `json:"kind"`

	// Name is the parameter name. Empty for other kinds.
	Name string `json:"name,omitempty"`

	// Value is the identifier (TokenID), the matched optional text
	// (TokenOptional) or the captured words (TokenParameter).
	Value string `json:"value"`
}

// String renders an identifier or optional text as is, and a parameter as
// "name = value".
func (t Token) String() string {
	if t.Kind == TokenParameter {
		return t.Name + " = " + t.Value
	}
	return t.Value
}

// Match is the outcome of a successful match. A failed match is reported as
// a nil *Match, so an empty Tokens slice means the grammar matched without
// producing any token.
type Match struct {
	// Tokens lists the tokens in grammar order.
	Tokens []Token `json:"tokens"`

	// Budget is the error budget left after the last node.
	Budget float64 `json:"budget"`
}

// Strings renders every token with [Token.String]. Optional markers are
// left out unless withOptionals is set.
func (m *Match) Strings(withOptionals bool) []string {
	out := make([]string, 0, len(m.Tokens))
	for _, t := range m.Tokens {
		if t.Kind == TokenOptional && !withOptionals {
			continue
		}
		out = append(out, t.String())
	}
	return out
}

// Params returns the captured parameters by name.
func (m *Match) Params() map[string]string {
	params := make(map[string]string)
	for _, t := range m.Tokens {
		if t.Kind == TokenParameter {
			params[t.Name] = t.Value
		}
	}
	return params
}

// String joins the rendered tokens, optional markers excluded.
func (m *Match) String() string {
	return "[" + strings.Join(m.Strings(false), ", ") + "]"
}
