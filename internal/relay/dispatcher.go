package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxBodyBytes caps how much of a response body is kept for diagnostics.
const maxBodyBytes = 64 << 10

// Outcome is the result of sending one command.
type Outcome struct {
	Command    Command
	URL        string
	StatusCode int
	Body       []byte
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Success reports whether the request was delivered and answered with 2xx.
func (o Outcome) Success() bool {
	return o.Err == nil && o.StatusCode >= 200 && o.StatusCode < 300
}

// Duration is how long the attempt took.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// Dispatcher posts commands to the remote API.
type Dispatcher struct {
	client *http.Client
	path   string
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher posting to server+path. A nil client
// uses a plain http.Client with the standard library's default behaviour.
func NewDispatcher(client *http.Client, path string, logger *zap.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Dispatcher{
		client: client,
		path:   path,
		logger: logger,
	}
}

// Dispatch sends both commands to server in order. The second command is
// sent only after the first has a final outcome, and it is sent even when
// the first failed. observe, if not nil, is called with each outcome as
// soon as it is known.
func (d *Dispatcher) Dispatch(ctx context.Context, server string, cmds [2]Command, observe func(Outcome)) [2]Outcome {
	var outcomes [2]Outcome
	for i, cmd := range cmds {
		outcomes[i] = d.Execute(ctx, server, cmd)
		if observe != nil {
			observe(outcomes[i])
		}
	}
	return outcomes
}

// Execute sends one command and waits for its result.
func (d *Dispatcher) Execute(ctx context.Context, server string, cmd Command) Outcome {
	out := Outcome{
		Command:   cmd,
		URL:       server + d.path,
		StartedAt: time.Now(),
	}

	d.logger.Info("executing deal request",
		zap.String("deal_action", cmd.Deal.String()),
		zap.String("bot_role", cmd.Role.String()),
		zap.Uint64("bot_id", cmd.BotID),
		zap.String("url", out.URL),
	)

	out.StatusCode, out.Body, out.Err = d.post(ctx, out.URL, cmd)
	out.FinishedAt = time.Now()
	return out
}

func (d *Dispatcher) post(ctx context.Context, url string, cmd Command) (int, []byte, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, body, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}
