package voicecmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/phonomatch/internal/config"
	"github.com/MrWong99/phonomatch/internal/intent"
	"github.com/MrWong99/phonomatch/internal/observe"
)

// Webhook returns an action that POSTs the recognition as JSON to
// cfg.Webhook. Any 2xx response counts as success. A zero cfg.Timeout
// falls back to [config.DefaultActionTimeout].
func Webhook(cfg config.ActionConfig, client *http.Client) Action {
	if client == nil {
		client = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultActionTimeout
	}
	return Action{
		Name: "webhook " + cfg.Webhook,
		Run: func(ctx context.Context, rec *intent.Recognition) (string, error) {
			return postRecognition(ctx, client, cfg, timeout, rec)
		},
	}
}

func postRecognition(ctx context.Context, client *http.Client, cfg config.ActionConfig, timeout time.Duration, rec *intent.Recognition) (status string, err error) {
	ctx, span := observe.StartSpan(ctx, "voicecmd.Webhook",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("intent", rec.Intent),
			attribute.String("recognition_id", rec.ID),
		),
	)
	defer func() {
		if err != nil {
			observe.FailSpan(span, err, "webhook failed")
		}
		span.End()
	}()

	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal recognition: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Webhook, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Recognition-ID", rec.ID)
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Status, nil
}

// ActionsFromConfig builds the action table for the configured webhooks,
// keyed by intent name.
func ActionsFromConfig(cfgs []config.ActionConfig, client *http.Client) map[string][]Action {
	out := make(map[string][]Action, len(cfgs))
	for _, c := range cfgs {
		out[c.Intent] = append(out[c.Intent], Webhook(c, client))
	}
	return out
}
