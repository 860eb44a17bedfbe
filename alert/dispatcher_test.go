package alert

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fall-detection/fall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type recordingNotifier struct {
	name string
	err  error
	sent []Message
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) Send(_ context.Context, msg Message) error {
	n.sent = append(n.sent, msg)
	return n.err
}

type panickingNotifier struct{}

func (panickingNotifier) Name() string                        { return "panic" }
func (panickingNotifier) Send(context.Context, Message) error { panic("boom") }

func testEvents() []fall.FallEvent {
	return []fall.FallEvent{
		{TimestampSeconds: 1, FrameIndex: 30, ConfidencePercent: 100, WallClockTime: "2024-03-01 10:15:00"},
		{TimestampSeconds: 5, FrameIndex: 150, ConfidencePercent: 100, WallClockTime: "2024-03-01 10:15:04"},
	}
}

func TestFallMessage(t *testing.T) {
	msg := FallMessage(testEvents()[0], time.Now())
	assert.True(t, strings.HasPrefix(msg, "🚨 FALL DETECTED! 🚨"))
	assert.Contains(t, msg, "Time: 2024-03-01 10:15:00")
	assert.Contains(t, msg, "Confidence: 100.0%")
	assert.Contains(t, msg, "Please check on the person immediately.")

	now := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	msg = FallMessage(fall.FallEvent{ConfidencePercent: 80}, now)
	assert.Contains(t, msg, "Time: 2024-05-02 08:00:00")
	assert.Contains(t, msg, "Confidence: 80.0%")
}

func TestNotifyReportsDelivery(t *testing.T) {
	ok := &recordingNotifier{name: "ok"}
	failing := &recordingNotifier{name: "failing", err: errors.New("network down")}

	d := NewDispatcher(PolicyFirst, ModeAfterRun, failing, ok)
	assert.True(t, d.Notify(context.Background(), testEvents()[0]))
	require.Len(t, ok.sent, 1)
	assert.Equal(t, KindFall, ok.sent[0].Kind)
	assert.Equal(t, 30, ok.sent[0].Event.FrameIndex)
	assert.Len(t, failing.sent, 1, "every notifier gets exactly one attempt")

	allFailing := NewDispatcher(PolicyFirst, ModeAfterRun, failing, panickingNotifier{})
	assert.NotPanics(t, func() {
		assert.False(t, allFailing.Notify(context.Background(), testEvents()[0]))
	})
}

func TestDispatcherTest(t *testing.T) {
	n := &recordingNotifier{name: "ok"}
	d := NewDispatcher("", "", n)
	assert.True(t, d.Test(context.Background()))
	require.Len(t, n.sent, 1)
	assert.Equal(t, KindTest, n.sent[0].Kind)
	assert.Equal(t, TestMessage, n.sent[0].Body)
	assert.Equal(t, PolicyFirst, d.Policy())
	assert.Equal(t, ModeAfterRun, d.Mode())
}

func TestRunAlertsPolicies(t *testing.T) {
	result := &fall.RunResult{FallEvents: testEvents(), TotalFalls: 2}

	cases := []struct {
		name   string
		policy Policy
		mode   Mode
		want   []int
	}{
		{"first after run", PolicyFirst, ModeAfterRun, []int{30}},
		{"all after run", PolicyAll, ModeAfterRun, []int{30, 150}},
		{"first realtime", PolicyFirst, ModeRealtime, []int{30}},
		{"all realtime", PolicyAll, ModeRealtime, []int{30, 150}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := &recordingNotifier{name: "ok"}
			run := NewDispatcher(tc.policy, tc.mode, n).ForRun()

			for _, e := range result.FallEvents {
				run.OnEvent(context.Background(), e)
			}
			assert.True(t, run.Complete(context.Background(), result))

			var frames []int
			for _, m := range n.sent {
				frames = append(frames, m.Event.FrameIndex)
			}
			assert.Equal(t, tc.want, frames)
			assert.Equal(t, len(tc.want), run.Attempted())
		})
	}
}

func TestRunAlertsNoFalls(t *testing.T) {
	n := &recordingNotifier{name: "ok"}
	run := NewDispatcher(PolicyAll, ModeAfterRun, n).ForRun()
	assert.False(t, run.Complete(context.Background(), &fall.RunResult{}))
	assert.Empty(t, n.sent)
}

func TestRunAlertsFailedDeliveryIsNotRetried(t *testing.T) {
	n := &recordingNotifier{name: "down", err: errors.New("unreachable")}
	run := NewDispatcher(PolicyFirst, ModeRealtime, n).ForRun()

	for _, e := range testEvents() {
		run.OnEvent(context.Background(), e)
	}
	assert.False(t, run.Complete(context.Background(), &fall.RunResult{FallEvents: testEvents()}))
	assert.Len(t, n.sent, 1)
}

func TestParsePolicyAndMode(t *testing.T) {
	p, err := ParsePolicy("all")
	require.NoError(t, err)
	assert.Equal(t, PolicyAll, p)
	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)

	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAfterRun, m)
	m, err = ParseMode("realtime")
	require.NoError(t, err)
	assert.Equal(t, ModeRealtime, m)
	_, err = ParseMode("later")
	assert.Error(t, err)
}

func TestConsoleNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewConsoleNotifier(&buf)
	n.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }

	require.NoError(t, n.Send(context.Background(), Message{Body: "hello"}))
	out := buf.String()
	assert.Contains(t, out, "SIMULATED MOBILE ALERT")
	assert.Contains(t, out, "Timestamp: 2024-03-01 09:00:00")
	assert.Contains(t, out, "Message: hello")
}

func TestDispatcherFromEnvFallsBackToConsole(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("MQTT_BROKER", "")
	t.Setenv("ALERT_POLICY", "all")
	t.Setenv("ALERT_MODE", "realtime")

	d, err := NewDispatcherFromEnv(context.Background())
	require.NoError(t, err)
	require.Len(t, d.notifiers, 1)
	assert.Equal(t, "console", d.notifiers[0].Name())
	assert.Equal(t, PolicyAll, d.Policy())
	assert.Equal(t, ModeRealtime, d.Mode())

	t.Setenv("ALERT_POLICY", "never")
	_, err = NewDispatcherFromEnv(context.Background())
	assert.Error(t, err)
}

type fakeMessages struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeMessages) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestTwilioNotifier(t *testing.T) {
	_, err := NewTwilioNotifier("sid", "", "+1000", "+2000")
	assert.ErrorIs(t, err, ErrMissingCredentials)

	api := &fakeMessages{}
	n := &TwilioNotifier{api: api, from: "+1000", to: "+2000"}
	require.NoError(t, n.Send(context.Background(), Message{Body: "fall"}))
	require.Len(t, api.params, 1)
	assert.Equal(t, "+2000", *api.params[0].To)
	assert.Equal(t, "+1000", *api.params[0].From)
	assert.Equal(t, "fall", *api.params[0].Body)

	api.err = errors.New("invalid number")
	assert.Error(t, n.Send(context.Background(), Message{Body: "fall"}))
}

type fakeToken struct {
	err      error
	finished bool
}

func (t *fakeToken) Wait() bool                     { return t.finished }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.finished }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakePublisher struct {
	topics   []string
	payloads [][]byte
	token    *fakeToken
}

func (p *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload.([]byte))
	return p.token
}

func TestMQTTNotifier(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{finished: true}}
	n := newMQTTNotifier(pub, "home/alerts")

	event := testEvents()[0]
	require.NoError(t, n.Send(context.Background(), Message{Kind: KindFall, Body: "fall", Event: &event}))
	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "home/alerts", pub.topics[0])
	assert.Contains(t, string(pub.payloads[0]), `"type":"fall_detected"`)
	assert.Contains(t, string(pub.payloads[0]), `"frame":30`)

	pub.token = &fakeToken{finished: false}
	assert.Error(t, n.Send(context.Background(), Message{Body: "x"}), "timeout")

	pub.token = &fakeToken{finished: true, err: errors.New("not authorised")}
	assert.Error(t, n.Send(context.Background(), Message{Body: "x"}))
	assert.NoError(t, n.Close())
}
