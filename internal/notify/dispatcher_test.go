package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codr1/Kickabout/internal/db"
)

type sent struct {
	phone string
	text  string
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sent
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeSender) Send(ctx context.Context, phone, text string) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{phone: phone, text: text})
	return f.err
}

func (f *fakeSender) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeFailures struct {
	mu       sync.Mutex
	failures []db.NotificationFailure
}

func (f *fakeFailures) RecordNotificationFailure(_ context.Context, failure *db.NotificationFailure) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, *failure)
	return nil
}

func (f *fakeFailures) list() []db.NotificationFailure {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]db.NotificationFailure(nil), f.failures...)
}

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}

func TestDispatcherDeliversQueuedMessages(t *testing.T) {
	sender := &fakeSender{}
	failures := &fakeFailures{}
	d := NewDispatcher(sender, failures, DispatcherConfig{Workers: 2, QueueSize: 8})

	d.Enqueue(Message{Kind: KindPromoted, UserID: "u1", Phone: "+15555550100", Name: "Sam", GameName: "Weekly"})
	d.Enqueue(Message{Kind: KindCustom, UserID: "u2", Phone: "+15555550101", Text: "hello"})
	closeDispatcher(t, d)

	msgs := sender.messages()
	require.Len(t, msgs, 2)
	assert.ElementsMatch(t, []string{"+15555550100", "+15555550101"}, []string{msgs[0].phone, msgs[1].phone})
	assert.Empty(t, failures.list())
}

func TestDispatcherRecordsSendFailures(t *testing.T) {
	sender := &fakeSender{err: errors.New("boom")}
	failures := &fakeFailures{}
	d := NewDispatcher(sender, failures, DispatcherConfig{Workers: 1, QueueSize: 4})

	d.Enqueue(Message{Kind: KindBumped, UserID: "u1", GameID: "g1", Phone: "+15555550100"})
	d.Enqueue(Message{Kind: KindPromoted, UserID: "u2", GameID: "g1"})
	closeDispatcher(t, d)

	got := failures.list()
	require.Len(t, got, 2)
	byUser := map[string]db.NotificationFailure{}
	for _, f := range got {
		byUser[f.UserID] = f
	}
	assert.Equal(t, "boom", byUser["u1"].Error)
	assert.Equal(t, "bumped", byUser["u1"].Kind)
	assert.Equal(t, "g1", byUser["u1"].GameID)
	assert.Equal(t, ErrNoPhone.Error(), byUser["u2"].Error)
}

func TestDispatcherEnqueueNeverBlocks(t *testing.T) {
	sender := &fakeSender{started: make(chan struct{}, 1), release: make(chan struct{})}
	failures := &fakeFailures{}
	d := NewDispatcher(sender, failures, DispatcherConfig{Workers: 1, QueueSize: 1})

	d.Enqueue(Message{Kind: KindCustom, UserID: "in-flight", Phone: "1"})
	<-sender.started

	d.Enqueue(Message{Kind: KindCustom, UserID: "queued", Phone: "2"})
	d.Enqueue(Message{Kind: KindCustom, UserID: "dropped", Phone: "3"})

	got := failures.list()
	require.Len(t, got, 1)
	assert.Equal(t, "dropped", got[0].UserID)
	assert.Equal(t, ErrQueueFull.Error(), got[0].Error)

	close(sender.release)
	go func() {
		for range sender.started {
		}
	}()
	closeDispatcher(t, d)
	close(sender.started)
	assert.Len(t, sender.messages(), 2)
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	failures := &fakeFailures{}
	d := NewDispatcher(&fakeSender{}, failures, DispatcherConfig{})
	closeDispatcher(t, d)
	closeDispatcher(t, d)

	d.Enqueue(Message{Kind: KindCustom, UserID: "late", Phone: "1"})
	got := failures.list()
	require.Len(t, got, 1)
	assert.Equal(t, ErrClosed.Error(), got[0].Error)
}
