package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront-payments/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakePublisher struct {
	mu       sync.Mutex
	topic    string
	messages [][]byte
	err      error
}

func (f *fakePublisher) Publish(topic string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.topic = topic
	f.messages = append(f.messages, body)
	return nil
}

type blockingNotifier struct {
	release chan struct{}
	calls   chan Notification
}

func (b *blockingNotifier) NotifyPayment(ctx context.Context, n Notification) error {
	b.calls <- n
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func testOrder() *model.Order {
	return &model.Order{
		ID:            "order-1",
		UserID:        "user-1",
		TotalAmount:   decimal.RequireFromString("110"),
		Currency:      "GBP",
		PaymentMethod: model.PaymentMethod{Type: model.ProviderBitcoin, Name: "Bitcoin"},
		PaymentStatus: model.PaymentCompleted,
	}
}

func TestNSQNotifier_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNSQNotifier(pub, "payment-notifications")

	require.NoError(t, n.NotifyPayment(context.Background(), FromOrder(testOrder())))

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "payment-notifications", pub.topic)

	var got Notification
	require.NoError(t, json.Unmarshal(pub.messages[0], &got))
	assert.Equal(t, "order-1", got.OrderID)
	assert.Equal(t, "110.00", got.Total)
	assert.Equal(t, model.PaymentCompleted, got.Status)
}

func TestDispatcher_DoesNotBlockCaller(t *testing.T) {
	b := &blockingNotifier{release: make(chan struct{}), calls: make(chan Notification, 1)}
	d := NewDispatcher(b, time.Minute, zap.NewNop())

	start := time.Now()
	d.Dispatch(FromOrder(testOrder()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	<-b.calls
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)

	close(b.release)
	require.NoError(t, d.Wait(context.Background()))
}

func TestDispatcher_LogsFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	pub := &fakePublisher{err: errors.New("nsqd unreachable")}
	d := NewDispatcher(NewNSQNotifier(pub, "t"), time.Second, zap.New(core))

	d.Dispatch(FromOrder(testOrder()))
	require.NoError(t, d.Wait(context.Background()))

	entries := logs.FilterMessage("payment notification failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "order-1", entries[0].ContextMap()["order_id"])
}
