package alert

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"fall-detection/fall"
)

// Message kinds.
const (
	KindFall = "fall_detected"
	KindTest = "test"
)

// Message is what a Notifier delivers.
type Message struct {
	Kind  string          `json:"type"`
	Body  string          `json:"message"`
	Event *fall.FallEvent `json:"event,omitempty"`
}

// Notifier is one alert transport.
type Notifier interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// FallMessage formats the alert text for event.
func FallMessage(event fall.FallEvent, now time.Time) string {
	timestamp := event.WallClockTime
	if timestamp == "" {
		timestamp = now.Format(fall.DateTimeLayout)
	}

	return strings.Join([]string{
		"🚨 FALL DETECTED! 🚨",
		"",
		"Time: " + timestamp,
		fmt.Sprintf("Confidence: %.1f%%", event.ConfidencePercent),
		"",
		"Immediate assistance may be required.",
		"Please check on the person immediately.",
	}, "\n")
}

// TestMessage is sent by Dispatcher.Test.
const TestMessage = "🧪 Test Alert - Fall Detection System is working!"

// ConsoleNotifier prints a simulated mobile alert. It is used when no real
// transport is configured.
type ConsoleNotifier struct {
	out io.Writer
	now func() time.Time
}

// NewConsoleNotifier writes alerts to out, or stdout when out is nil.
func NewConsoleNotifier(out io.Writer) *ConsoleNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleNotifier{out: out, now: time.Now}
}

func (n *ConsoleNotifier) Name() string { return "console" }

func (n *ConsoleNotifier) Send(_ context.Context, msg Message) error {
	rule := strings.Repeat("=", 60)
	_, err := fmt.Fprintf(n.out, "\n%s\n📱 SIMULATED MOBILE ALERT\n%s\nTimestamp: %s\nMessage: %s\n%s\n\n",
		rule, rule, n.now().Format(fall.DateTimeLayout), msg.Body, rule)
	return err
}
