// Package mcp exposes the recognizer as Model Context Protocol tools, so
// that an assistant can resolve free text to intents and inspect the
// phoneme transliteration used for matching.
//
// Three tools are registered:
//   - "recognize_intent": recognise one utterance.
//   - "transliterate": show the per-word phonemes of a text.
//   - "list_intents": list the loaded intents with their grammar outline.
//
// The server can run on any [mcpsdk.Transport] (stdio for local clients) or
// be mounted on an HTTP mux with [Server.Handler].
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/phonomatch/internal/intent"
	"github.com/MrWong99/phonomatch/internal/observe"
)

// TextInput is the input of the text-based tools.
type TextInput struct {
	Text string `json:"text" jsonschema:"the utterance, as free text"`
}

// RecognizeOutput is the output of "recognize_intent".
type RecognizeOutput struct {
	Matched    bool              `json:"matched"`
	ID         string            `json:"id,omitempty"`
	Intent     string            `json:"intent,omitempty"`
	Strings    []string          `json:"strings,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
	BudgetLeft float64           `json:"budget_left,omitempty"`
}

// TransliterateOutput is the output of "transliterate".
type TransliterateOutput struct {
	Language string         `json:"language,omitempty"`
	Words    []WordPhonemes `json:"words"`
}

// WordPhonemes pairs a word with its phonemes.
type WordPhonemes struct {
	Word     string `json:"word"`
	Phonemes string `json:"phonemes"`
}

// ListIntentsOutput is the output of "list_intents".
type ListIntentsOutput struct {
	Intents []IntentSummary `json:"intents"`
}

// IntentSummary describes one loaded intent.
type IntentSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Outline     []string `json:"outline"`
}

// Server is an MCP server backed by a live recognizer.
type Server struct {
	live   *intent.Live
	server *mcpsdk.Server
}

// NewServer creates a Server reading the recognizer from live on every call.
func NewServer(live *intent.Live, version string) *Server {
	s := &Server{live: live}
	s.server = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "phonomatch", Version: version}, nil)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "recognize_intent",
		Description: "Match an utterance against the loaded intent grammars, tolerating phonetic recognition errors. Returns the intent, the recognised tokens and captured parameters.",
	}, s.recognize)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "transliterate",
		Description: "Show the phonemes each word of a text is transliterated to before matching.",
	}, s.transliterate)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "list_intents",
		Description: "List the loaded intents with an outline of their grammar.",
	}, s.listIntents)
	return s
}

// Run serves a single session on t until the client disconnects or ctx is
// cancelled.
func (s *Server) Run(ctx context.Context, t mcpsdk.Transport) error {
	if err := s.server.Run(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp: run: %w", err)
	}
	return nil
}

// Connect starts a session on t and returns without waiting for it to end.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	ss, err := s.server.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect: %w", err)
	}
	return ss, nil
}

// Handler returns a streamable HTTP handler serving this server.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.server }, nil)
}

func (s *Server) recognizer() (*intent.Recognizer, error) {
	r := s.live.Load()
	if r == nil {
		return nil, intent.ErrNotReady
	}
	return r, nil
}

func (s *Server) recognize(ctx context.Context, _ *mcpsdk.CallToolRequest, in TextInput) (*mcpsdk.CallToolResult, RecognizeOutput, error) {
	r, err := s.recognizer()
	if err != nil {
		return nil, RecognizeOutput{}, err
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, RecognizeOutput{}, errors.New("text is required")
	}

	rec, err := r.Recognize(ctx, text)
	if err != nil {
		return nil, RecognizeOutput{}, err
	}
	if rec == nil {
		observe.Logger(ctx).Debug("mcp: no intent matched", "text", text)
		return nil, RecognizeOutput{Matched: false}, nil
	}
	return nil, RecognizeOutput{
		Matched:    true,
		ID:         rec.ID,
		Intent:     rec.Intent,
		Strings:    rec.Strings,
		Params:     rec.Params,
		BudgetLeft: rec.BudgetLeft,
	}, nil
}

func (s *Server) transliterate(ctx context.Context, _ *mcpsdk.CallToolRequest, in TextInput) (*mcpsdk.CallToolResult, TransliterateOutput, error) {
	r, err := s.recognizer()
	if err != nil {
		return nil, TransliterateOutput{}, err
	}
	conv := r.Converter()
	u, err := conv.Convert(ctx, in.Text)
	if err != nil {
		return nil, TransliterateOutput{}, err
	}

	out := TransliterateOutput{Language: conv.Language(), Words: make([]WordPhonemes, len(u.Words))}
	for i, w := range u.Words {
		out.Words[i] = WordPhonemes{Word: w, Phonemes: conv.Alphabet().Decode(u.Phonemes[i])}
	}
	return nil, out, nil
}

func (s *Server) listIntents(_ context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, ListIntentsOutput, error) {
	r, err := s.recognizer()
	if err != nil {
		return nil, ListIntentsOutput{}, err
	}
	intents := r.Intents()
	out := ListIntentsOutput{Intents: make([]IntentSummary, len(intents))}
	for i, in := range intents {
		out.Intents[i] = IntentSummary{Name: in.Name, Description: in.Description, Outline: in.Outline()}
	}
	return nil, out, nil
}
