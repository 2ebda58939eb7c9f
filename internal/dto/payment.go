package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/school-registry/internal/models"
)

// CheckPaymentRequest applies a check or manual payment to a ledger row.
type CheckPaymentRequest struct {
	BalanceID int64           `json:"balanceId" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" validate:"required,max=120"`
	PaidAt    time.Time       `json:"paidAt"`
	Note      string          `json:"note" validate:"max=1000"`
}

// CapturePaymentRequest applies a gateway capture to a ledger row.
type CapturePaymentRequest struct {
	OrderID   string `json:"orderId" validate:"required,max=120"`
	BalanceID int64  `json:"balanceId" validate:"required,gt=0"`
}

// PaymentResult is the outcome of an applied payment.
type PaymentResult struct {
	Receipt              models.PaymentReceipt `json:"receipt"`
	Balance              models.FamilyBalance  `json:"balance"`
	RegistrationsUpdated int64                 `json:"registrationsUpdated"`
}
