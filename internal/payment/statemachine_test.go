package payment

import (
	"context"
	"testing"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/gateway"
	"storefront-payments/internal/model"
	"storefront-payments/internal/repository"
	"storefront-payments/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from  model.PaymentStatus
		event Event
		want  model.PaymentStatus
		legal bool
	}{
		{model.PaymentPending, EventInitiate, model.PaymentAwaitingConfirmation, true},
		{model.PaymentPending, EventComplete, model.PaymentPending, false},
		{model.PaymentAwaitingConfirmation, EventProgress, model.PaymentAwaitingConfirmation, true},
		{model.PaymentAwaitingConfirmation, EventUnderpay, model.PaymentUnderpaid, true},
		{model.PaymentAwaitingConfirmation, EventComplete, model.PaymentCompleted, true},
		{model.PaymentAwaitingConfirmation, EventExpire, model.PaymentExpired, true},
		{model.PaymentAwaitingConfirmation, EventCancel, model.PaymentCancelled, true},
		{model.PaymentAwaitingConfirmation, EventInitiate, model.PaymentAwaitingConfirmation, false},
		{model.PaymentUnderpaid, EventComplete, model.PaymentCompleted, true},
		{model.PaymentUnderpaid, EventUnderpay, model.PaymentUnderpaid, true},
		{model.PaymentUnderpaid, EventExpire, model.PaymentExpired, true},
		{model.PaymentCompleted, EventInitiate, model.PaymentCompleted, false},
		{model.PaymentCompleted, EventUnderpay, model.PaymentCompleted, false},
		{model.PaymentExpired, EventComplete, model.PaymentExpired, false},
		{model.PaymentCancelled, EventProgress, model.PaymentCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			got, err := Transition(tt.from, tt.event)
			assert.Equal(t, tt.want, got)
			if tt.legal {
				assert.NoError(t, err)
				return
			}

			var illegal *IllegalTransitionError
			require.ErrorAs(t, err, &illegal)
			assert.Equal(t, tt.from, illegal.From)
			assert.ErrorIs(t, err, apperror.ErrIllegalTransition)
		})
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		obs  Observation
		want Event
	}{
		{"expired wins over a full payment", Observation{Kind: gateway.EventPayment, Expired: true, Sufficient: true, Confirmations: 5, Required: 2}, EventExpire},
		{"provider expiry", Observation{Kind: gateway.EventExpired}, EventExpire},
		{"provider cancel", Observation{Kind: gateway.EventCancelled}, EventCancel},
		{"short payment", Observation{Kind: gateway.EventPayment, Confirmations: 9, Required: 2}, EventUnderpay},
		{"waiting for confirmations", Observation{Kind: gateway.EventPayment, Sufficient: true, Confirmations: 1, Required: 2}, EventProgress},
		{"confirmed", Observation{Kind: gateway.EventPayment, Sufficient: true, Confirmations: 2, Required: 2}, EventComplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.obs))
		})
	}
}

func TestStateMachine_Apply(t *testing.T) {
	db := testutil.NewDB(t)
	orders := repository.NewOrderRepository(db)
	machine := NewStateMachine(orders)
	ctx := context.Background()

	order := testutil.AwaitingOrder(t, db, "order-1", model.ProviderBitcoin, model.PaymentDetails{
		CryptoAmount: testutil.Dec("0.00275"),
	})

	details := order.PaymentDetails
	details.Confirmations = 2
	details.ReceivedAmount = testutil.Dec("0.00275")

	to, err := machine.Apply(ctx, db, order, EventComplete, details)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, to)
	assert.Equal(t, model.OrderProcessing, order.OrderStatus)
	require.NotNil(t, order.PaidAt)

	stored, err := orders.FindByID(ctx, nil, "order-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, stored.PaymentStatus)
	assert.Equal(t, model.OrderProcessing, stored.OrderStatus)
	assert.Equal(t, 2, stored.PaymentDetails.Confirmations)
	assert.NotNil(t, stored.PaidAt)

	_, err = machine.Apply(ctx, db, order, EventInitiate, details)
	assert.ErrorIs(t, err, apperror.ErrIllegalTransition)
}

func TestStateMachine_ApplyDetectsStaleRead(t *testing.T) {
	db := testutil.NewDB(t)
	orders := repository.NewOrderRepository(db)
	machine := NewStateMachine(orders)
	ctx := context.Background()

	testutil.AwaitingOrder(t, db, "order-1", model.ProviderMonero, model.PaymentDetails{})

	first, err := orders.FindByID(ctx, nil, "order-1")
	require.NoError(t, err)
	second, err := orders.FindByID(ctx, nil, "order-1")
	require.NoError(t, err)

	_, err = machine.Apply(ctx, db, first, EventCancel, first.PaymentDetails)
	require.NoError(t, err)

	_, err = machine.Apply(ctx, db, second, EventComplete, second.PaymentDetails)
	assert.ErrorIs(t, err, ErrStaleOrder)
	assert.Equal(t, model.PaymentAwaitingConfirmation, second.PaymentStatus)

	stored, err := orders.FindByID(ctx, nil, "order-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCancelled, stored.PaymentStatus)
	assert.Equal(t, model.OrderCancelled, stored.OrderStatus)
}

func TestStateMachine_ApplyDetectsStaleSelfLoop(t *testing.T) {
	db := testutil.NewDB(t)
	orders := repository.NewOrderRepository(db)
	machine := NewStateMachine(orders)
	ctx := context.Background()

	testutil.AwaitingOrder(t, db, "order-1", model.ProviderBitcoin, model.PaymentDetails{CryptoAmount: testutil.Dec("0.00275")})
	require.NoError(t, db.Model(&model.Order{}).Where("id = ?", "order-1").Update("payment_status", model.PaymentUnderpaid).Error)

	first, err := orders.FindByID(ctx, nil, "order-1")
	require.NoError(t, err)
	second, err := orders.FindByID(ctx, nil, "order-1")
	require.NoError(t, err)

	a := first.PaymentDetails
	a.ReceivedAmount = testutil.Dec("0.002")
	a.LastTxID = "tx-a"
	to, err := machine.Apply(ctx, db, first, EventUnderpay, a)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentUnderpaid, to)
	assert.Equal(t, 1, first.PaymentVersion)

	b := second.PaymentDetails
	b.ReceivedAmount = testutil.Dec("0.0015")
	b.LastTxID = "tx-b"
	_, err = machine.Apply(ctx, db, second, EventUnderpay, b)
	assert.ErrorIs(t, err, ErrStaleOrder)

	stored, err := orders.FindByID(ctx, nil, "order-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentUnderpaid, stored.PaymentStatus)
	assert.Equal(t, "tx-a", stored.PaymentDetails.LastTxID)
	assert.True(t, testutil.Dec("0.002").Equal(stored.PaymentDetails.ReceivedAmount))
}
