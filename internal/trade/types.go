// Package trade models inbound alerts and the deal actions they translate to.
package trade

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Signal is the direction of an inbound alert.
type Signal int

const (
	// Buy asks for long exposure.
	Buy Signal = iota + 1
	// Sell asks for short exposure.
	Sell
)

// ErrMissingAction is returned for payloads without an action.
var ErrMissingAction = errors.New("missing action")

// ParseSignal accepts "buy" or "sell" in any letter case.
func ParseSignal(s string) (Signal, error) {
	switch strings.ToLower(s) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown signal action %q", s)
	}
}

func (s Signal) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("Signal(%d)", int(s))
	}
}

// MarshalJSON encodes the signal as its lowercase name.
func (s Signal) MarshalJSON() ([]byte, error) {
	if s != Buy && s != Sell {
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes "buy" or "sell".
func (s *Signal) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("signal action must be a string: %w", err)
	}
	parsed, err := ParseSignal(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// DealAction is what a command does to a bot's deal.
type DealAction int

const (
	// Start opens a deal.
	Start DealAction = iota + 1
	// Close closes the open deal at market price.
	Close
)

// CloseAtMarketPrice is the wire token for Close.
const CloseAtMarketPrice = "close_at_market_price"

func (a DealAction) String() string {
	switch a {
	case Start:
		return "start"
	case Close:
		return "close"
	default:
		return fmt.Sprintf("DealAction(%d)", int(a))
	}
}

// WireValue is the value of the remote API's action field. Start has none,
// so the field is left out of the payload.
func (a DealAction) WireValue() string {
	switch a {
	case Start:
		return ""
	case Close:
		return CloseAtMarketPrice
	default:
		panic(fmt.Sprintf("trade: unknown deal action %d", int(a)))
	}
}

// BotRole selects which configured bot a command addresses.
type BotRole int

const (
	// Long is the bot holding long exposure.
	Long BotRole = iota + 1
	// Short is the bot holding short exposure.
	Short
)

func (r BotRole) String() string {
	switch r {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return fmt.Sprintf("BotRole(%d)", int(r))
	}
}

// Action is one deal action against one bot.
type Action struct {
	Deal DealAction
	Role BotRole
}

func (a Action) String() string {
	return a.Deal.String() + " " + a.Role.String()
}

// IncomingSignal is the alert payload, e.g. {"action": "buy", "contracts": 1}.
// Unknown fields are ignored.
type IncomingSignal struct {
	Action Signal `json:"action"`
	// Contracts is logged but does not affect the commands sent.
	Contracts decimal.NullDecimal `json:"contracts"`
}

// Validate rejects payloads that decoded without an action.
func (in IncomingSignal) Validate() error {
	switch in.Action {
	case Buy, Sell:
		return nil
	case 0:
		return ErrMissingAction
	default:
		return fmt.Errorf("unknown signal %s", in.Action)
	}
}

// ContractsString renders Contracts for logging, or "" when absent.
func (in IncomingSignal) ContractsString() string {
	if !in.Contracts.Valid {
		return ""
	}
	return in.Contracts.Decimal.String()
}
