package exchange

import "go.uber.org/zap"

// Notifier receives engine lifecycle events. TradeCompleted fires on every
// settlement; OrderCreated fires on every accepted submission.
type Notifier interface {
	OrderCreated(engine string, o *Order)
	TradeCompleted(engine string, t *Trade)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) OrderCreated(string, *Order)   {}
func (NopNotifier) TradeCompleted(string, *Trade) {}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	Log *zap.SugaredLogger
}

func (n LogNotifier) OrderCreated(engine string, o *Order) {
	n.Log.Infow("order_created",
		"engine", engine, "pair", o.Pair, "order", o.ID, "side", o.Side.String(),
		"owner", o.Owner.Hex(), "volume", o.Volume, "ratio", o.Ratio)
}

func (n LogNotifier) TradeCompleted(engine string, t *Trade) {
	n.Log.Infow("trade_completed",
		"engine", engine, "pair", t.Pair, "trade", t.ID,
		"ratio", t.Ratio, "volume", t.Volume)
}

// FanoutNotifier forwards events to every member.
type FanoutNotifier []Notifier

func (f FanoutNotifier) OrderCreated(engine string, o *Order) {
	for _, n := range f {
		n.OrderCreated(engine, o)
	}
}

func (f FanoutNotifier) TradeCompleted(engine string, t *Trade) {
	for _, n := range f {
		n.TradeCompleted(engine, t)
	}
}
