// Package relay turns inbound signals into ordered deal commands and sends
// them to the remote trading-bot API.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/geoffp/tradeproxy/internal/config"
	"github.com/geoffp/tradeproxy/internal/trade"
)

// Relay runs one background task per signal. Callers never wait on a task;
// outcomes are only logged and passed to sinks.
type Relay struct {
	settings *config.Store
	client   *http.Client
	reporter *Reporter
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// New creates a relay. It fails when the settings store was never loaded.
func New(settings *config.Store, client *http.Client, logger *zap.Logger, sinks ...Sink) (*Relay, error) {
	if settings == nil || !settings.Loaded() {
		return nil, fmt.Errorf("failed to create relay: %w", config.ErrNotLoaded)
	}
	return &Relay{
		settings: settings,
		client:   client,
		reporter: NewReporter(logger, sinks...),
		logger:   logger,
	}, nil
}

// Handle starts processing sig in the background and returns its ID.
func (r *Relay) Handle(sig trade.IncomingSignal) string {
	id := uuid.New().String()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		// Tasks are never cancelled; they outlive the inbound request.
		r.Process(context.Background(), id, sig)
	}()

	return id
}

// Process translates sig and sends both commands, reporting each outcome.
func (r *Relay) Process(ctx context.Context, id string, sig trade.IncomingSignal) [2]Outcome {
	settings, err := r.settings.Snapshot()
	if err != nil {
		// New refuses unloaded stores, so this is a programming error.
		panic(fmt.Sprintf("relay: %v", err))
	}

	logger := r.logger.With(zap.String("signal_id", id))
	logger.Info("got signal",
		zap.String("action", sig.Action.String()),
		zap.String("contracts", sig.ContractsString()),
	)

	pair := trade.Translate(sig.Action)
	cmds := NewCommands(pair, settings)
	for _, cmd := range cmds {
		logger.Info("generating deal request",
			zap.String("deal_action", cmd.Deal.String()),
			zap.String("bot_role", cmd.Role.String()),
			zap.Uint64("bot_id", cmd.BotID),
		)
	}

	dispatcher := NewDispatcher(r.client, settings.RequestPath, logger)
	return dispatcher.Dispatch(ctx, settings.RequestServer, cmds, func(o Outcome) {
		r.reporter.Report(ctx, id, sig.Action.String(), o)
	})
}

// Wait blocks until every task started by Handle has finished.
func (r *Relay) Wait() {
	r.wg.Wait()
}

// Drain waits like Wait but gives up when ctx is done.
func (r *Relay) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("relay tasks still running: %w", ctx.Err())
	}
}
