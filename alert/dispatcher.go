package alert

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"fall-detection/fall"
	"fall-detection/utils"

	"github.com/mdobak/go-xerrors"
)

// Policy selects which fall events of a run are alerted.
type Policy string

const (
	PolicyFirst Policy = "first" // only the first fall of a run
	PolicyAll   Policy = "all"
)

// Mode selects when alerts are sent.
type Mode string

const (
	ModeAfterRun Mode = "after_run" // once the stream has been processed
	ModeRealtime Mode = "realtime"  // as soon as a fall is confirmed
)

// ParsePolicy parses an ALERT_POLICY value; empty means PolicyFirst.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFirst:
		return PolicyFirst, nil
	case PolicyAll:
		return PolicyAll, nil
	default:
		return "", fmt.Errorf("unknown alert policy %q", s)
	}
}

// ParseMode parses an ALERT_MODE value; empty means ModeAfterRun.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAfterRun:
		return ModeAfterRun, nil
	case ModeRealtime:
		return ModeRealtime, nil
	default:
		return "", fmt.Errorf("unknown alert mode %q", s)
	}
}

// Dispatcher delivers fall alerts through its notifiers. It is safe to share
// between runs; per-run state lives in RunAlerts.
type Dispatcher struct {
	notifiers []Notifier
	policy    Policy
	mode      Mode
	now       func() time.Time
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. Without notifiers alerts go to the
// console.
func NewDispatcher(policy Policy, mode Mode, notifiers ...Notifier) *Dispatcher {
	if len(notifiers) == 0 {
		notifiers = []Notifier{NewConsoleNotifier(nil)}
	}
	if policy == "" {
		policy = PolicyFirst
	}
	if mode == "" {
		mode = ModeAfterRun
	}
	return &Dispatcher{
		notifiers: notifiers,
		policy:    policy,
		mode:      mode,
		now:       time.Now,
		logger:    utils.GetLogger(),
	}
}

// NewDispatcherFromEnv builds the notifiers from the environment: Twilio SMS
// when its credentials are set (console otherwise) plus MQTT when
// MQTT_BROKER is set.
func NewDispatcherFromEnv(ctx context.Context) (*Dispatcher, error) {
	policy, err := ParsePolicy(utils.GetEnv("ALERT_POLICY"))
	if err != nil {
		return nil, err
	}
	mode, err := ParseMode(utils.GetEnv("ALERT_MODE"))
	if err != nil {
		return nil, err
	}

	logger := utils.GetLogger()
	var notifiers []Notifier

	sms, err := NewTwilioNotifier(
		utils.GetEnv("TWILIO_ACCOUNT_SID"),
		utils.GetEnv("TWILIO_AUTH_TOKEN"),
		utils.GetEnv("TWILIO_PHONE_NUMBER"),
		utils.GetEnv("ALERT_PHONE_NUMBER"),
	)
	if err != nil {
		logger.WarnContext(ctx, "Twilio credentials not found, SMS alerts disabled and simulated in console")
		notifiers = append(notifiers, NewConsoleNotifier(nil))
	} else {
		notifiers = append(notifiers, sms)
	}

	if broker := utils.GetEnv("MQTT_BROKER"); broker != "" {
		topic := utils.GetEnv("MQTT_TOPIC", "fall-detection/alerts")
		clientID := utils.GetEnv("MQTT_CLIENT_ID", "fall-detection-"+utils.GenerateRunID()[:8])
		mq, err := NewMQTTNotifier(broker, topic, clientID)
		if err != nil {
			logger.ErrorContext(ctx, "MQTT alerts disabled", slog.Any("error", xerrors.New(err)))
		} else {
			notifiers = append(notifiers, mq)
		}
	}

	return NewDispatcher(policy, mode, notifiers...), nil
}

// Policy returns the configured policy.
func (d *Dispatcher) Policy() Policy { return d.policy }

// Mode returns the configured mode.
func (d *Dispatcher) Mode() Mode { return d.mode }

// Notify sends one fall alert. It reports whether at least one notifier
// delivered it. Failures are logged, never returned.
func (d *Dispatcher) Notify(ctx context.Context, event fall.FallEvent) bool {
	msg := Message{
		Kind:  KindFall,
		Body:  FallMessage(event, d.now()),
		Event: &event,
	}
	return d.send(ctx, msg)
}

// Test sends the test alert.
func (d *Dispatcher) Test(ctx context.Context) bool {
	return d.send(ctx, Message{Kind: KindTest, Body: TestMessage})
}

// Close releases notifiers that hold connections.
func (d *Dispatcher) Close() error {
	var firstErr error
	for _, n := range d.notifiers {
		if c, ok := n.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (d *Dispatcher) send(ctx context.Context, msg Message) bool {
	delivered := false
	for _, n := range d.notifiers {
		if err := d.sendOne(ctx, n, msg); err != nil {
			d.logger.ErrorContext(ctx, "alert delivery failed",
				slog.String("notifier", n.Name()),
				slog.Any("error", xerrors.New(err)),
			)
			continue
		}
		delivered = true
	}
	return delivered
}

func (d *Dispatcher) sendOne(ctx context.Context, n Notifier, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panicked: %v", r)
		}
	}()
	return n.Send(ctx, msg)
}

// ForRun returns the alert state for one run.
func (d *Dispatcher) ForRun() *RunAlerts {
	return &RunAlerts{d: d}
}

// RunAlerts applies the dispatcher's policy and mode to one run.
type RunAlerts struct {
	d         *Dispatcher
	attempted int
	delivered bool
}

// OnEvent is a fall.EventListener; it only sends in realtime mode.
func (r *RunAlerts) OnEvent(ctx context.Context, event fall.FallEvent) {
	if r.d.mode != ModeRealtime {
		return
	}
	r.dispatch(ctx, event)
}

// Complete sends the after-run alerts for result and reports whether any
// alert of the run was delivered.
func (r *RunAlerts) Complete(ctx context.Context, result *fall.RunResult) bool {
	if r.d.mode == ModeAfterRun && result != nil {
		for _, event := range result.FallEvents {
			if !r.dispatch(ctx, event) {
				break
			}
		}
	}
	return r.delivered
}

// Attempted returns how many alerts were attempted for the run.
func (r *RunAlerts) Attempted() int { return r.attempted }

// dispatch returns false once the policy allows no further alerts.
func (r *RunAlerts) dispatch(ctx context.Context, event fall.FallEvent) bool {
	if r.d.policy == PolicyFirst && r.attempted > 0 {
		return false
	}
	r.attempted++
	if r.d.Notify(ctx, event) {
		r.delivered = true
	}
	return r.d.policy == PolicyAll
}
