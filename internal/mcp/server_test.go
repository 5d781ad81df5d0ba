package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/phonomatch/internal/intent"
	"github.com/MrWong99/phonomatch/internal/observe"
	"github.com/MrWong99/phonomatch/pkg/g2p"
)

const lightsYAML = `
intents:
  - name: lights
    description: Switch the lights.
    nodes:
      - kind: alternative
        choices:
          - {id: "on", text: allume}
          - {id: "off", text: éteins}
      - {kind: basic, id: light, text: la lumière}
      - {kind: parametric, name: room}
`

func newLive(t *testing.T) *intent.Live {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	conv := g2p.NewConverter(g2p.Identity{}, g2p.WithLanguage("fr"))
	f, err := intent.Decode(strings.NewReader(lightsYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	intents, err := intent.CompileFile(context.Background(), f, conv, nil)
	if err != nil {
		t.Fatalf("CompileFile: %v", err)
	}
	return intent.NewLive(intent.NewRecognizer(conv, intents, intent.WithMetrics(m)))
}

// connect starts s on an in-memory transport and returns a client session.
func connect(t *testing.T, s *Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientT, serverT := mcpsdk.NewInMemoryTransports()

	ss, err := s.Connect(ctx, serverT)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client Connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

// call invokes a tool and decodes its structured output into out.
func call(t *testing.T, cs *mcpsdk.ClientSession, name string, args map[string]any, out any) *mcpsdk.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if res.IsError || out == nil {
		return res
	}
	data, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode structured content: %v", err)
	}
	return res
}

func TestServer_ListsTools(t *testing.T) {
	t.Parallel()

	cs := connect(t, NewServer(newLive(t), "test"))
	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	want := []string{"list_intents", "recognize_intent", "transliterate"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("tools mismatch (-want +got):\n%s", diff)
	}
}

func TestServer_RecognizeIntent(t *testing.T) {
	t.Parallel()

	cs := connect(t, NewServer(newLive(t), "test"))

	tests := []struct {
		name string
		text string
		want RecognizeOutput
	}{
		{
			name: "match with parameter",
			text: "Allume la lumière du salon",
			want: RecognizeOutput{
				Matched: true,
				Intent:  "lights",
				Strings: []string{"on", "light", "room = du salon"},
				Params:  map[string]string{"room": "du salon"},
			},
		},
		{name: "no match", text: "ferme la porte", want: RecognizeOutput{Matched: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got RecognizeOutput
			res := call(t, cs, "recognize_intent", map[string]any{"text": tt.text}, &got)
			if res.IsError {
				t.Fatalf("tool error: %+v", res.Content)
			}
			if tt.want.Matched && got.ID == "" {
				t.Error("missing recognition id")
			}
			got.ID, got.BudgetLeft = "", 0
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestServer_RecognizeIntentEmptyText(t *testing.T) {
	t.Parallel()

	cs := connect(t, NewServer(newLive(t), "test"))
	res := call(t, cs, "recognize_intent", map[string]any{"text": "  "}, nil)
	if !res.IsError {
		t.Error("expected a tool error for empty text")
	}
}

func TestServer_Transliterate(t *testing.T) {
	t.Parallel()

	cs := connect(t, NewServer(newLive(t), "test"))

	var got TransliterateOutput
	res := call(t, cs, "transliterate", map[string]any{"text": "Éteins la lumière!"}, &got)
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	want := TransliterateOutput{
		Language: "fr",
		Words: []WordPhonemes{
			{Word: "Éteins", Phonemes: "eteins"},
			{Word: "la", Phonemes: "la"},
			{Word: "lumière!", Phonemes: "lumiere"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestServer_ListIntents(t *testing.T) {
	t.Parallel()

	cs := connect(t, NewServer(newLive(t), "test"))

	var got ListIntentsOutput
	res := call(t, cs, "list_intents", map[string]any{}, &got)
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	if len(got.Intents) != 1 || got.Intents[0].Name != "lights" {
		t.Fatalf("intents = %+v", got.Intents)
	}
	if got.Intents[0].Description != "Switch the lights." || len(got.Intents[0].Outline) == 0 {
		t.Errorf("intent = %+v", got.Intents[0])
	}
}

func TestServer_NotReady(t *testing.T) {
	t.Parallel()

	s := NewServer(intent.NewLive(nil), "test")
	ctx := context.Background()

	if _, _, err := s.recognize(ctx, nil, TextInput{Text: "allume"}); !errors.Is(err, intent.ErrNotReady) {
		t.Errorf("recognize err = %v, want ErrNotReady", err)
	}
	if _, _, err := s.transliterate(ctx, nil, TextInput{Text: "allume"}); !errors.Is(err, intent.ErrNotReady) {
		t.Errorf("transliterate err = %v, want ErrNotReady", err)
	}
	if _, _, err := s.listIntents(ctx, nil, struct{}{}); !errors.Is(err, intent.ErrNotReady) {
		t.Errorf("listIntents err = %v, want ErrNotReady", err)
	}
}
