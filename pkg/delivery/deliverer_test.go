package delivery_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/delivery"
	"github.com/dmitrymomot/notifykit/pkg/directory"
	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/push"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/sms"
	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

var now = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(ctx context.Context, params email.SendEmailParams) error {
	return m.Called(ctx, params).Error(0)
}

type mockPush struct{ mock.Mock }

func (m *mockPush) Send(ctx context.Context, tokens []string, msg push.Message) (push.Result, error) {
	args := m.Called(ctx, tokens, msg)
	return args.Get(0).(push.Result), args.Error(1)
}

type mockSMS struct{ mock.Mock }

func (m *mockSMS) Send(ctx context.Context, phone, text string) (string, error) {
	args := m.Called(ctx, phone, text)
	return args.String(0), args.Error(1)
}

type fixture struct {
	manager *notifications.Manager
	mailer  *mockMailer
	push    *mockPush
	sms     *mockSMS
	dir     *directory.MemoryDirectory
	d       *delivery.Deliverer
}

func newFixture(t *testing.T, webhookURL string) *fixture {
	t.Helper()
	clock := func() time.Time { return now }

	f := &fixture{
		mailer: new(mockMailer),
		push:   new(mockPush),
		sms:    new(mockSMS),
		dir: directory.NewMemoryDirectory(directory.User{
			ID:         "u1",
			Name:       "Ada",
			Email:      "ada@example.com",
			Phone:      "+14155550100",
			PushTokens: []string{"tok-1"},
			WebhookURL: webhookURL,
			IsActive:   true,
		}),
	}
	f.manager = notifications.NewManager(notifications.NewMemoryStorage(notifications.WithMemoryClock(clock)), nil,
		notifications.WithManagerClock(clock),
		notifications.WithManagerLogger(logger.Discard()),
	)

	var err error
	f.d, err = delivery.New(delivery.Deps{
		Records: f.manager,
		Users:   f.dir,
		Email:   f.mailer,
		Push:    f.push,
		SMS:     f.sms,
		Webhook: webhook.NewSender(webhook.WithLogger(logger.Discard())),
	},
		delivery.WithClock(clock),
		delivery.WithLogger(logger.Discard()),
		delivery.WithConfig(delivery.Config{EmailFooter: "Notifykit", WebhookSecret: "s3cret"}),
	)
	require.NoError(t, err)
	return f
}

func (f *fixture) create(t *testing.T, mutate ...func(n *notifications.Notification)) notifications.Notification {
	t.Helper()
	all := []events.Channel{events.ChannelEmail, events.ChannelPush, events.ChannelSMS, events.ChannelInApp, events.ChannelWebhook}
	n := notifications.Notification{
		UserID:   "u1",
		Type:     events.SubscriptionGranted,
		Priority: events.PriorityHigh,
		Title:    "Welcome to Pro",
		Body:     "Your subscription is active.",
		Rich:     notifications.Rich{ActionURL: "https://app.example.com/billing", ActionText: "Manage"},
		Channels: notifications.NewChannels(all, all, now),
		Metadata: notifications.Metadata{Payload: map[string]any{"tier": "pro"}},
	}
	for _, m := range mutate {
		m(&n)
	}
	n, err := f.manager.Send(context.Background(), n)
	require.NoError(t, err)
	return n
}

func (f *fixture) status(t *testing.T, id string, ch events.Channel) notifications.ChannelState {
	t.Helper()
	n, err := f.manager.Get(context.Background(), "u1", id)
	require.NoError(t, err)
	return n.Channels[ch]
}

func payload(n notifications.Notification) dispatch.DeliveryPayload {
	return dispatch.DeliveryPayload{NotificationID: n.ID, UserID: n.UserID}
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := delivery.New(delivery.Deps{})
	assert.ErrorIs(t, err, delivery.ErrMissingDependency)

	d, err := delivery.New(delivery.Deps{
		Records: notifications.NewManager(notifications.NewMemoryStorage(), nil),
		Users:   directory.NewMemoryDirectory(),
		SMS:     new(mockSMS),
	})
	require.NoError(t, err)
	assert.Equal(t, []events.Channel{events.ChannelSMS}, d.Channels())

	handlers := d.Handlers()
	require.Len(t, handlers, 1)
	assert.Equal(t, "deliver.sms", handlers[0].Name())
}

func TestDeliverer_Email(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	n := f.create(t)

	f.mailer.On("SendEmail", mock.Anything, mock.MatchedBy(func(p email.SendEmailParams) bool {
		return p.SendTo == "ada@example.com" &&
			p.Subject == "Welcome to Pro" &&
			p.Tag == string(events.SubscriptionGranted) &&
			p.Metadata["notification_id"] == n.ID &&
			strings.Contains(p.BodyHTML, "https://app.example.com/billing") &&
			strings.Contains(p.BodyText, "Notifykit")
	})).Return(nil).Once()

	require.NoError(t, f.d.Deliver(context.Background(), events.ChannelEmail, payload(n)))
	assert.Equal(t, notifications.StatusSent, f.status(t, n.ID, events.ChannelEmail).Status)

	// a redelivered job does not send twice
	require.NoError(t, f.d.Deliver(context.Background(), events.ChannelEmail, payload(n)))
	f.mailer.AssertExpectations(t)
}

func TestDeliverer_Push(t *testing.T) {
	t.Parallel()

	t.Run("critical is urgent", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, "")
		n := f.create(t, func(n *notifications.Notification) { n.Priority = events.PriorityCritical })

		f.push.On("Send", mock.Anything, []string{"tok-1"}, mock.MatchedBy(func(m push.Message) bool {
			return m.Urgent && m.Data["notification_id"] == n.ID && m.Data["action_url"] != ""
		})).Return(push.Result{Sent: 1}, nil).Once()

		require.NoError(t, f.d.Deliver(context.Background(), events.ChannelPush, payload(n)))
		assert.Equal(t, notifications.StatusSent, f.status(t, n.ID, events.ChannelPush).Status)
		f.push.AssertExpectations(t)
	})

	t.Run("all tokens rejected is permanent", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, "")
		n := f.create(t)

		f.push.On("Send", mock.Anything, mock.Anything, mock.Anything).
			Return(push.Result{Failed: 1, InvalidTokens: []string{"tok-1"}}, push.ErrNoValidTokens).Once()

		err := f.d.Deliver(context.Background(), events.ChannelPush, payload(n))
		require.Error(t, err)
		assert.True(t, queue.IsPermanent(err))
		st := f.status(t, n.ID, events.ChannelPush)
		assert.Equal(t, notifications.StatusFailed, st.Status)
		assert.NotEmpty(t, st.Error)
	})
}

func TestDeliverer_SMS(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	n := f.create(t)

	f.sms.On("Send", mock.Anything, "+14155550100",
		"Welcome to Pro: Your subscription is active. https://app.example.com/billing",
	).Return("msg-1", nil).Once()

	require.NoError(t, f.d.Deliver(context.Background(), events.ChannelSMS, payload(n)))
	assert.Equal(t, notifications.StatusSent, f.status(t, n.ID, events.ChannelSMS).Status)
	f.sms.AssertExpectations(t)
}

func TestDeliverer_Webhook(t *testing.T) {
	t.Parallel()

	var got delivery.WebhookPayload
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		headers = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	f := newFixture(t, srv.URL)
	n := f.create(t)

	require.NoError(t, f.d.Deliver(context.Background(), events.ChannelWebhook, payload(n)))
	assert.Equal(t, notifications.StatusSent, f.status(t, n.ID, events.ChannelWebhook).Status)

	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, events.SubscriptionGranted, got.Type)
	assert.Equal(t, "pro", got.Data["tier"])
	assert.Equal(t, n.ID, headers.Get(webhook.HeaderDelivery))
	assert.NotEmpty(t, headers.Get(webhook.HeaderSignature))
}

func TestDeliverer_WebhookRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	t.Cleanup(srv.Close)

	f := newFixture(t, srv.URL)
	n := f.create(t)

	err := f.d.Deliver(context.Background(), events.ChannelWebhook, payload(n))
	assert.True(t, queue.IsPermanent(err))
	assert.Equal(t, notifications.StatusFailed, f.status(t, n.ID, events.ChannelWebhook).Status)
}

func TestDeliverer_SettledWithoutSending(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(f *fixture, n *notifications.Notification)
		channel events.Channel
		want    notifications.ChannelStatus
	}{
		{
			name:    "missing address",
			mutate:  func(f *fixture, _ *notifications.Notification) { f.dir.Put(directory.User{ID: "u1", IsActive: true}) },
			channel: events.ChannelSMS,
			want:    notifications.StatusFailed,
		},
		{
			name:    "inactive recipient",
			mutate:  func(f *fixture, _ *notifications.Notification) { f.dir.Put(directory.User{ID: "u1", Email: "ada@example.com"}) },
			channel: events.ChannelEmail,
			want:    notifications.StatusFailed,
		},
		{
			name: "expired",
			mutate: func(_ *fixture, n *notifications.Notification) {
				at := now.Add(-time.Minute)
				n.Metadata.ExpiresAt = &at
			},
			channel: events.ChannelEmail,
			want:    notifications.StatusFailed,
		},
		{
			name: "disabled channel",
			mutate: func(_ *fixture, n *notifications.Notification) {
				n.Channels = notifications.NewChannels(
					[]events.Channel{events.ChannelEmail, events.ChannelInApp},
					[]events.Channel{events.ChannelInApp}, now)
			},
			channel: events.ChannelEmail,
			want:    notifications.StatusPending,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, "")
			n := f.create(t, func(n *notifications.Notification) { tt.mutate(f, n) })

			require.NoError(t, f.d.Deliver(context.Background(), tt.channel, payload(n)))
			assert.Equal(t, tt.want, f.status(t, n.ID, tt.channel).Status)
			f.mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
			f.sms.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestDeliverer_InvalidJobs(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")

	err := f.d.Deliver(context.Background(), events.ChannelEmail, dispatch.DeliveryPayload{})
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, delivery.ErrInvalidPayload)

	err = f.d.Deliver(context.Background(), events.ChannelEmail, dispatch.DeliveryPayload{NotificationID: "missing", UserID: "u1"})
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, delivery.ErrNotificationGone)
}

func TestDeliverer_RetriesThenDeadLetters(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	n := f.create(t)

	var calls atomic.Int32
	f.sms.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return("", errors.Join(sms.ErrFailedToSend, errors.New("throttled")))

	clock := now
	storage := queue.NewMemoryStorage(queue.WithMemoryClock(func() time.Time { return clock }))
	enq, err := queue.NewEnqueuer(storage, queue.WithEnqueuerClock(func() time.Time { return clock }))
	require.NoError(t, err)

	// the hook is a backstop for jobs that never reach the handler
	dead := make(chan queue.Job, 1)
	hook := f.d.DeadLetterHook()
	worker, err := queue.NewWorker(storage,
		queue.WithWorkerClock(func() time.Time { return clock }),
		queue.WithWorkerLogger(logger.Discard()),
		queue.WithDeadLetterHook(func(ctx context.Context, job queue.Job, cause error) {
			hook(ctx, job, cause)
			dead <- job
		}),
	)
	require.NoError(t, err)
	worker.RegisterHandlers(f.d.Handlers()...)

	_, err = enq.Enqueue(context.Background(), dispatch.JobName(events.ChannelSMS), payload(n), queue.WithMaxAttempts(2))
	require.NoError(t, err)

	_, err = worker.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusPending, f.status(t, n.ID, events.ChannelSMS).Status)

	clock = clock.Add(time.Minute)
	_, err = worker.ProcessNext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	require.Len(t, dead, 1)
	st := f.status(t, n.ID, events.ChannelSMS)
	assert.Equal(t, notifications.StatusFailed, st.Status)
	assert.Contains(t, st.Error, "throttled")
}

func TestDeliverer_DeadLetterHook(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	n := f.create(t)
	hook := f.d.DeadLetterHook()

	raw, err := json.Marshal(payload(n))
	require.NoError(t, err)

	hook(context.Background(), queue.Job{Name: "reminders.expired", Payload: raw}, errors.New("ignored"))
	assert.Equal(t, notifications.StatusPending, f.status(t, n.ID, events.ChannelPush).Status)

	hook(context.Background(), queue.Job{Name: dispatch.JobName(events.ChannelPush), Payload: raw}, errors.New("payload decode failed"))
	st := f.status(t, n.ID, events.ChannelPush)
	assert.Equal(t, notifications.StatusFailed, st.Status)
	assert.Equal(t, "payload decode failed", st.Error)

	overall, err := f.manager.Get(context.Background(), "u1", n.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.OverallPartial, overall.OverallStatus)
}
