package relay

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/geoffp/tradeproxy/internal/chaos"
	"github.com/geoffp/tradeproxy/internal/config"
	"github.com/geoffp/tradeproxy/internal/trade"
)

const testPath = "/trade_signal/trading_view"

func TestExecute_CorrectPost(t *testing.T) {
	api, srv := newMockAPI(t, nil, nil)
	d := NewDispatcher(nil, testPath, zap.NewNop())

	cmd := NewCommand(trade.Action{Deal: trade.Start, Role: trade.Long}, config.Default())
	out := d.Execute(context.Background(), srv.URL, cmd)

	require.NoError(t, out.Err)
	assert.True(t, out.Success())
	assert.Equal(t, "Success!", string(out.Body))
	assert.False(t, out.FinishedAt.Before(out.StartedAt))

	reqs := api.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, testPath, reqs[0].Path)
	assert.Equal(t, "application/json", reqs[0].ContentType)
	assert.Equal(t, correctLongStartJSON, reqs[0].Body)
}

func TestExecute_ServerError(t *testing.T) {
	_, srv := newMockAPI(t, []int{http.StatusNotImplemented}, nil)
	d := NewDispatcher(nil, testPath, zap.NewNop())

	out := d.Execute(context.Background(), srv.URL, NewCommand(trade.Action{Deal: trade.Close, Role: trade.Long}, config.Default()))

	require.NoError(t, out.Err)
	assert.False(t, out.Success())
	assert.Equal(t, http.StatusNotImplemented, out.StatusCode)
	assert.Equal(t, "Fail!", string(out.Body))
}

func TestExecute_TransportError(t *testing.T) {
	_, srv := newMockAPI(t, nil, nil)
	url := srv.URL
	srv.Close()

	d := NewDispatcher(nil, testPath, zap.NewNop())
	out := d.Execute(context.Background(), url, NewCommand(trade.Action{Deal: trade.Start, Role: trade.Short}, config.Default()))

	assert.Error(t, out.Err)
	assert.False(t, out.Success())
	assert.Equal(t, 0, out.StatusCode)
}

func TestDispatch_SecondWaitsForFirst(t *testing.T) {
	api, srv := newMockAPI(t, nil, []time.Duration{150 * time.Millisecond})
	d := NewDispatcher(nil, testPath, zap.NewNop())

	cmds := NewCommands(trade.Translate(trade.Buy), config.Default())
	outcomes := d.Dispatch(context.Background(), srv.URL, cmds, nil)

	reqs := api.Requests()
	require.Len(t, reqs, 2)
	assert.False(t, reqs[1].ArrivedAt.Before(outcomes[0].FinishedAt),
		"second command sent before first completed")
	assert.False(t, outcomes[1].StartedAt.Before(outcomes[0].FinishedAt))
	assert.True(t, outcomes[0].Duration() >= 150*time.Millisecond)
}

func TestDispatch_FirstFailureDoesNotBlockSecond(t *testing.T) {
	api, srv := newMockAPI(t, []int{http.StatusInternalServerError, http.StatusOK}, nil)
	d := NewDispatcher(nil, testPath, zap.NewNop())

	var observed []Outcome
	cmds := NewCommands(trade.Translate(trade.Sell), config.Default())
	outcomes := d.Dispatch(context.Background(), srv.URL, cmds, func(o Outcome) {
		observed = append(observed, o)
	})

	require.Len(t, api.Requests(), 2)
	assert.False(t, outcomes[0].Success())
	assert.Equal(t, http.StatusInternalServerError, outcomes[0].StatusCode)
	assert.True(t, outcomes[1].Success())

	require.Len(t, observed, 2)
	assert.Equal(t, trade.Close, observed[0].Command.Deal)
	assert.Equal(t, trade.Start, observed[1].Command.Deal)
}

func TestOutcome_Success(t *testing.T) {
	assert.True(t, Outcome{StatusCode: 200}.Success())
	assert.True(t, Outcome{StatusCode: 204}.Success())
	assert.False(t, Outcome{StatusCode: 302}.Success())
	assert.False(t, Outcome{StatusCode: 404}.Success())
	assert.False(t, Outcome{StatusCode: 200, Err: assert.AnError}.Success())
	assert.False(t, Outcome{}.Success())
}

func TestDispatch_InjectedDropOnFirstCommand(t *testing.T) {
	api, srv := newMockAPI(t, nil, nil)
	c := chaos.New(&chaos.Config{Enabled: true, DropPct: 100, Budget: 1}, zap.NewNop())
	d := NewDispatcher(chaos.NewTransport(nil, c).Client(), testPath, zap.NewNop())

	cmds := NewCommands(trade.Translate(trade.Buy), config.Default())
	outcomes := d.Dispatch(context.Background(), srv.URL, cmds, nil)

	assert.ErrorIs(t, outcomes[0].Err, chaos.ErrDropped)
	assert.False(t, outcomes[0].Success())
	assert.True(t, outcomes[1].Success(), "second command still attempted")

	reqs := api.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, correctLongStartJSON, reqs[0].Body)
}

func TestDispatch_InjectedDelayOnFirstCommand(t *testing.T) {
	api, srv := newMockAPI(t, nil, nil)
	c := chaos.New(&chaos.Config{Enabled: true, DelayMsMin: 100, DelayMsMax: 100, Budget: 1}, zap.NewNop())
	d := NewDispatcher(chaos.NewTransport(nil, c).Client(), testPath, zap.NewNop())

	cmds := NewCommands(trade.Translate(trade.Sell), config.Default())
	outcomes := d.Dispatch(context.Background(), srv.URL, cmds, nil)

	reqs := api.Requests()
	require.Len(t, reqs, 2)
	assert.True(t, outcomes[0].Duration() >= 100*time.Millisecond)
	assert.False(t, reqs[1].ArrivedAt.Before(outcomes[0].FinishedAt))
	assert.True(t, reqs[0].ArrivedAt.Before(reqs[1].ArrivedAt))
}
