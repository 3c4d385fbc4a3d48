package chain

import (
	"context"
	"testing"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatepass/internal/status"
)

func TestSubscription_ForwardsConfirmations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := &subscribe{lis: pubnub.NewListener()}
	go sub.processSubscription(ctx)

	// The channel is attached after the loop is already consuming.
	confirmations := make(chan *status.Confirmation, 1)
	sub.setChannel(confirmations)

	sub.lis.Message <- &pubnub.PNMessage{
		Message: `{"agreementId":"escrow_event-3","contractRef":"contract-1","txRef":"tx-1","amount":"150.00","currency":"USD","confirmedAt":"2025-08-31 12:00:00"}`,
	}

	select {
	case conf := <-confirmations:
		assert.Equal(t, "escrow_event-3", conf.AgreementID)
		assert.Equal(t, "contract-1", conf.ContractRef)
		assert.Equal(t, "tx-1", conf.TxRef)
		assert.Equal(t, "USD", conf.Currency)
		assert.True(t, conf.Amount.Equal(decimal.RequireFromString("150.00")))

		want, err := time.ParseInLocation("2006-01-02 15:04:05", "2025-08-31 12:00:00", time.Local)
		require.NoError(t, err)
		assert.Equal(t, want, conf.ConfirmedAt)

	case <-time.After(2 * time.Second):
		t.Fatal("confirmation was not forwarded")
	}
}

func TestSubscription_SkipsUnparsableMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := &subscribe{lis: pubnub.NewListener()}
	go sub.processSubscription(ctx)

	confirmations := make(chan *status.Confirmation, 1)
	sub.setChannel(confirmations)

	// Wrong payload type, then broken JSON, then a valid confirmation.
	sub.lis.Message <- &pubnub.PNMessage{Message: 42}
	sub.lis.Message <- &pubnub.PNMessage{Message: `{"agreementId":`}
	sub.lis.Message <- &pubnub.PNMessage{
		Message: `{"agreementId":"escrow_event-4","contractRef":"contract-2","txRef":"tx-2","amount":"1","currency":"USD","confirmedAt":"2025-08-31 13:00:00"}`,
	}

	select {
	case conf := <-confirmations:
		assert.Equal(t, "escrow_event-4", conf.AgreementID, "bad messages must be skipped, not forwarded")

	case <-time.After(2 * time.Second):
		t.Fatal("confirmation was not forwarded")
	}
}
