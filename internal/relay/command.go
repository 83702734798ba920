package relay

import (
	"fmt"

	"github.com/geoffp/tradeproxy/internal/config"
	"github.com/geoffp/tradeproxy/internal/trade"
)

// Command is the payload the 3Commas trading_view endpoint accepts.
// Field order is the wire order.
type Command struct {
	MessageType  string `json:"message_type"`
	BotID        uint64 `json:"bot_id"`
	EmailToken   string `json:"email_token"`
	DelaySeconds uint64 `json:"delay_seconds"`
	Action       string `json:"action,omitempty"`

	// Deal and Role are kept for reporting only.
	Deal trade.DealAction `json:"-"`
	Role trade.BotRole    `json:"-"`
}

// NewCommand builds the command for one action using settings s.
func NewCommand(a trade.Action, s config.Settings) Command {
	return Command{
		MessageType:  "bot",
		BotID:        botID(a.Role, s),
		EmailToken:   s.EmailToken,
		DelaySeconds: 0,
		Action:       a.Deal.WireValue(),
		Deal:         a.Deal,
		Role:         a.Role,
	}
}

// NewCommands builds both commands of a pair, in pair order.
func NewCommands(p trade.ActionPair, s config.Settings) [2]Command {
	actions := p.Actions()
	return [2]Command{
		NewCommand(actions[0], s),
		NewCommand(actions[1], s),
	}
}

func botID(r trade.BotRole, s config.Settings) uint64 {
	switch r {
	case trade.Long:
		return s.LongBotID
	case trade.Short:
		return s.ShortBotID
	default:
		panic(fmt.Sprintf("relay: unknown bot role %d", int(r)))
	}
}
