package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceType tags why a ledger row exists.
type BalanceType string

const (
	BalanceTypeRegistration BalanceType = "REGISTRATION"
	BalanceTypeDropOut      BalanceType = "DROP_OUT"
	BalanceTypeAdjustment   BalanceType = "ADJUSTMENT"
)

// BalanceStatus tracks settlement of a ledger row.
type BalanceStatus string

const (
	BalanceStatusOpen BalanceStatus = "OPEN"
	BalanceStatusPaid BalanceStatus = "PAID"
	BalanceStatusVoid BalanceStatus = "VOID"
)

// FamilyBalance is one signed ledger row for a family and season.
// TotalAmount always equals the sum of the named fee fields.
type FamilyBalance struct {
	ID               int64           `db:"id" json:"id"`
	FamilyID         int64           `db:"family_id" json:"family_id"`
	SeasonID         int64           `db:"season_id" json:"season_id"`
	RegistrationFee  decimal.Decimal `db:"registration_fee" json:"registration_fee"`
	EarlyRegDiscount decimal.Decimal `db:"early_reg_discount" json:"early_reg_discount"`
	LateRegFee       decimal.Decimal `db:"late_reg_fee" json:"late_reg_fee"`
	ManageFee        decimal.Decimal `db:"manage_fee" json:"manage_fee"`
	DutyFee          decimal.Decimal `db:"duty_fee" json:"duty_fee"`
	CleaningFee      decimal.Decimal `db:"cleaning_fee" json:"cleaning_fee"`
	OtherFee         decimal.Decimal `db:"other_fee" json:"other_fee"`
	Tuition          decimal.Decimal `db:"tuition" json:"tuition"`
	BookFee          decimal.Decimal `db:"book_fee" json:"book_fee"`
	SpecialFee       decimal.Decimal `db:"special_fee" json:"special_fee"`
	GroupDiscount    decimal.Decimal `db:"group_discount" json:"group_discount"`
	ProcessFee       decimal.Decimal `db:"process_fee" json:"process_fee"`
	TotalAmount      decimal.Decimal `db:"total_amount" json:"total_amount"`
	Type             BalanceType     `db:"type" json:"type"`
	Status           BalanceStatus   `db:"status" json:"status"`
	Note             string          `db:"note" json:"note"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// FieldSum adds every signed fee field.
func (b FamilyBalance) FieldSum() decimal.Decimal {
	return decimal.Sum(
		b.RegistrationFee,
		b.EarlyRegDiscount,
		b.LateRegFee,
		b.ManageFee,
		b.DutyFee,
		b.CleaningFee,
		b.OtherFee,
		b.Tuition,
		b.BookFee,
		b.SpecialFee,
		b.GroupDiscount,
		b.ProcessFee,
	)
}

// Consistent reports whether TotalAmount matches the field sum.
func (b FamilyBalance) Consistent() bool {
	return b.TotalAmount.Equal(b.FieldSum())
}

// Recalculate sets TotalAmount from the fee fields.
func (b *FamilyBalance) Recalculate() {
	b.TotalAmount = b.FieldSum()
}

// ApplyPrice adds the signed price triplet to the row and keeps the total in step.
func (b *FamilyBalance) ApplyPrice(p Price, sign int32) {
	factor := decimal.NewFromInt32(sign)
	b.Tuition = b.Tuition.Add(p.Tuition.Mul(factor))
	b.BookFee = b.BookFee.Add(p.BookFee.Mul(factor))
	b.SpecialFee = b.SpecialFee.Add(p.SpecialFee.Mul(factor))
	b.Recalculate()
}

// ApplyPayment reduces tuition and total by the paid amount.
func (b *FamilyBalance) ApplyPayment(amount decimal.Decimal) {
	b.Tuition = b.Tuition.Sub(amount)
	b.TotalAmount = b.TotalAmount.Sub(amount)
}

// SettleStatus marks the row paid once nothing is owed and reopens it when a
// negative amount leaves a debt again. Void rows keep their status.
func (b *FamilyBalance) SettleStatus() {
	if b.Status == BalanceStatusVoid {
		return
	}
	if b.TotalAmount.IsPositive() {
		b.Status = BalanceStatusOpen
		return
	}
	b.Status = BalanceStatusPaid
}

// NewChargeRow builds a registration ledger row for the given price.
func NewChargeRow(familyID, seasonID int64, p Price) *FamilyBalance {
	row := &FamilyBalance{
		FamilyID: familyID,
		SeasonID: seasonID,
		Type:     BalanceTypeRegistration,
		Status:   BalanceStatusOpen,
	}
	row.ApplyPrice(p, 1)
	return row
}

// NewDropOutRow builds the negative adjustment appended when a change is approved.
func NewDropOutRow(familyID, seasonID int64, p Price, note string) *FamilyBalance {
	row := &FamilyBalance{
		FamilyID: familyID,
		SeasonID: seasonID,
		Type:     BalanceTypeDropOut,
		Status:   BalanceStatusOpen,
		Note:     note,
	}
	row.ApplyPrice(p, -1)
	return row
}

// PaymentSource tells where a payment came from.
type PaymentSource string

const (
	PaymentSourceCheck   PaymentSource = "CHECK"
	PaymentSourceGateway PaymentSource = "GATEWAY"
)

// PaymentReceipt journals an applied payment; references are unique.
type PaymentReceipt struct {
	ID        int64           `db:"id" json:"id"`
	BalanceID int64           `db:"balance_id" json:"balance_id"`
	FamilyID  int64           `db:"family_id" json:"family_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Reference string          `db:"reference" json:"reference"`
	PaidAt    time.Time       `db:"paid_at" json:"paid_at"`
	Note      string          `db:"note" json:"note"`
	Source    PaymentSource   `db:"source" json:"source"`
	CreatedBy int64           `db:"created_by" json:"created_by"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// FamilyStatement bundles a family's ledger and receipts for a season.
type FamilyStatement struct {
	FamilyID int64            `json:"family_id"`
	SeasonID int64            `json:"season_id"`
	Rows     []FamilyBalance  `json:"rows"`
	Receipts []PaymentReceipt `json:"receipts"`
	Total    decimal.Decimal  `json:"total"`
}
