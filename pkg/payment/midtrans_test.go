package payment

import (
	"context"
	"testing"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkerStub struct {
	res  *coreapi.TransactionStatusResponse
	err  *midtrans.Error
	seen string
}

func (c *checkerStub) CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error) {
	c.seen = orderID
	return c.res, c.err
}

func TestMapStatus(t *testing.T) {
	cases := []struct {
		ts, fs string
		want   CaptureStatus
	}{
		{"settlement", "", StatusCompleted},
		{"capture", "accept", StatusCompleted},
		{"Capture", "ACCEPT", StatusCompleted},
		{"capture", "challenge", StatusPending},
		{"pending", "", StatusPending},
		{"deny", "", StatusFailed},
		{"expire", "", StatusFailed},
		{"cancel", "", StatusFailed},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MapStatus(tc.ts, tc.fs), "%s/%s", tc.ts, tc.fs)
	}
}

func TestMidtransVerifierVerify(t *testing.T) {
	stub := &checkerStub{res: &coreapi.TransactionStatusResponse{
		TransactionID:     "trx-1",
		OrderID:           "order-1",
		GrossAmount:       "150000.00",
		TransactionStatus: "settlement",
	}}
	v := &MidtransVerifier{client: stub}

	capture, err := v.Verify(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", stub.seen)
	assert.Equal(t, StatusCompleted, capture.Status)
	assert.Equal(t, "trx-1", capture.ID)
	assert.True(t, capture.Amount.Equal(decimal.NewFromInt(150000)))
}

func TestMidtransVerifierErrors(t *testing.T) {
	v := &MidtransVerifier{client: &checkerStub{err: &midtrans.Error{Message: "not found", StatusCode: 404}}}
	_, err := v.Verify(context.Background(), "order-x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = v.Verify(context.Background(), " ")
	require.Error(t, err)

	v = &MidtransVerifier{client: &checkerStub{res: &coreapi.TransactionStatusResponse{GrossAmount: "abc"}}}
	_, err = v.Verify(context.Background(), "order-y")
	require.Error(t, err)
}
