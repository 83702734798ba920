package trade

import "fmt"

// ActionPair is the ordered pair of actions derived from one signal.
// The close of the opposing bot always comes before the start, so both bots
// never hold open positions at the same time. Only Translate builds pairs.
type ActionPair struct {
	close Action
	start Action
}

// Close returns the first action.
func (p ActionPair) Close() Action { return p.close }

// Start returns the second action.
func (p ActionPair) Start() Action { return p.start }

// Actions returns both actions in execution order.
func (p ActionPair) Actions() [2]Action {
	return [2]Action{p.close, p.start}
}

// Translate maps a signal to its action pair.
//
//	Buy  -> close short, start long
//	Sell -> close long, start short
func Translate(s Signal) ActionPair {
	switch s {
	case Buy:
		return ActionPair{
			close: Action{Deal: Close, Role: Short},
			start: Action{Deal: Start, Role: Long},
		}
	case Sell:
		return ActionPair{
			close: Action{Deal: Close, Role: Long},
			start: Action{Deal: Start, Role: Short},
		}
	default:
		panic(fmt.Sprintf("trade: unknown signal %d", int(s)))
	}
}
