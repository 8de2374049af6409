// Package notification delivers signal and fault alerts to external
// channels (webhooks, Telegram) alongside the in-band redis/websocket
// distribution paths.
package notification

import (
	"context"
	"fmt"
	"log"

	"signal-systemv1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is one outbound notification.
type Alert struct {
	Level      AlertLevel `json:"level"`
	StrategyID string     `json:"strategy_id,omitempty"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
}

// FromSignal builds the alert for an emitted trading signal.
func FromSignal(sig model.Signal) Alert {
	return Alert{
		Level:      AlertInfo,
		StrategyID: sig.StrategyID,
		Title:      fmt.Sprintf("%s %s %s", sig.StrategyID, sig.Side, sig.Type),
		Message: fmt.Sprintf("rule %s fired at %.2f (confidence %.2f)",
			sig.RuleID, sig.Price, sig.Confidence),
	}
}

// FromFault builds the alert for a strategy instance fault.
func FromFault(strategyID string, err error) Alert {
	return Alert{
		Level:      AlertCritical,
		StrategyID: strategyID,
		Title:      fmt.Sprintf("strategy %s faulted", strategyID),
		Message:    err.Error(),
	}
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of delivering them (useful in
// development and as the fallback backend).
type LogNotifier struct{}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans one alert out to several backends. Delivery failures are
// logged, not propagated; alerting must never stall signal processing.
type Multi struct {
	backends []Notifier
}

// NewMulti creates a fan-out notifier over the given backends.
func NewMulti(backends ...Notifier) *Multi {
	return &Multi{backends: backends}
}

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	for _, b := range m.backends {
		if err := b.Send(ctx, alert); err != nil {
			log.Printf("[notify] backend %T: %v", b, err)
		}
	}
	return nil
}
