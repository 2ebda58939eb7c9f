package payment

import (
	"context"
	"fmt"
	"strings"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/shopspring/decimal"
)

// CaptureStatus is the provider-neutral state of a captured order.
type CaptureStatus string

const (
	StatusCompleted CaptureStatus = "COMPLETED"
	StatusPending   CaptureStatus = "PENDING"
	StatusFailed    CaptureStatus = "FAILED"
)

// Capture is what the provider reports for one order.
type Capture struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Status    CaptureStatus   `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	RawStatus string          `json:"raw_status"`
}

// Verifier looks up the capture state of an order.
type Verifier interface {
	Verify(ctx context.Context, orderID string) (*Capture, error)
}

type statusChecker interface {
	CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
}

// MidtransVerifier asks the Midtrans core API for transaction status.
type MidtransVerifier struct {
	client statusChecker
}

// NewMidtransVerifier builds a verifier for the sandbox or production environment.
func NewMidtransVerifier(serverKey string, production bool) *MidtransVerifier {
	client := &coreapi.Client{}
	if production {
		client.New(serverKey, midtrans.Production)
	} else {
		client.New(serverKey, midtrans.Sandbox)
	}
	return &MidtransVerifier{client: client}
}

// Verify fetches the order status and maps it to a Capture.
func (v *MidtransVerifier) Verify(ctx context.Context, orderID string) (*Capture, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("order id is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, merr := v.client.CheckTransaction(orderID)
	if merr != nil {
		return nil, fmt.Errorf("midtrans check transaction %s: %s", orderID, merr.Message)
	}
	if res == nil {
		return nil, fmt.Errorf("midtrans check transaction %s: empty response", orderID)
	}

	amount, err := decimal.NewFromString(res.GrossAmount)
	if err != nil {
		return nil, fmt.Errorf("parse gross amount %q: %w", res.GrossAmount, err)
	}

	return &Capture{
		ID:        res.TransactionID,
		OrderID:   res.OrderID,
		Status:    MapStatus(res.TransactionStatus, res.FraudStatus),
		Amount:    amount,
		RawStatus: res.TransactionStatus,
	}, nil
}

// MapStatus translates Midtrans transaction and fraud states.
// Only settlement, or capture accepted by fraud screening, counts as completed.
func MapStatus(transactionStatus, fraudStatus string) CaptureStatus {
	ts := strings.ToLower(strings.TrimSpace(transactionStatus))
	fs := strings.ToLower(strings.TrimSpace(fraudStatus))
	switch ts {
	case "settlement":
		return StatusCompleted
	case "capture":
		if fs == "accept" {
			return StatusCompleted
		}
		return StatusPending
	case "pending", "authorize":
		return StatusPending
	default:
		return StatusFailed
	}
}
