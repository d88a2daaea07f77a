package recurrence

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/finance-ledger/ledger"
)

// ChargeInput is a user-entered upcoming charge.
type ChargeInput struct {
	Date     ledger.Date
	Payee    string
	Amount   decimal.Decimal
	Category ledger.Category
}

func (in ChargeInput) Validate() error {
	if in.Date.IsZero() {
		return &ledger.ValidationError{Field: "date", Message: "required"}
	}
	if strings.TrimSpace(in.Payee) == "" {
		return &ledger.ValidationError{Field: "payee", Message: "required"}
	}
	if !in.Amount.IsPositive() {
		return &ledger.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if !in.Category.Valid() {
		return &ledger.ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", in.Category)}
	}
	return nil
}

// AddCharge records a manual upcoming charge. A second charge with the
// same payee and date is rejected with *ledger.DuplicateOccurrenceError.
func (s *Service) AddCharge(ctx context.Context, ownerID ledger.OwnerID, in ChargeInput) (ledger.Occurrence, error) {
	if err := in.Validate(); err != nil {
		return ledger.Occurrence{}, err
	}
	if _, err := s.Store.GetOwner(ctx, ownerID); err != nil {
		return ledger.Occurrence{}, err
	}

	occ := ledger.Occurrence{
		ID:        ledger.OccurrenceID(uuid.New().String()),
		OwnerID:   ownerID,
		Date:      in.Date,
		Payee:     strings.TrimSpace(in.Payee),
		Amount:    in.Amount,
		Category:  in.Category,
		CreatedAt: s.Now().UTC(),
	}
	if err := s.Store.InsertOccurrence(ctx, occ); err != nil {
		return ledger.Occurrence{}, err
	}
	return occ, nil
}

// EditCharge changes an upcoming charge in place. Provenance is kept, so
// an edited generated occurrence still counts towards its rule.
func (s *Service) EditCharge(ctx context.Context, ownerID ledger.OwnerID, id ledger.OccurrenceID, in ChargeInput) (ledger.Occurrence, error) {
	if err := in.Validate(); err != nil {
		return ledger.Occurrence{}, err
	}

	var updated ledger.Occurrence
	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		occ, err := st.GetOccurrence(ctx, ownerID, id)
		if err != nil {
			return err
		}
		updated = *occ
		updated.Date = in.Date
		updated.Payee = strings.TrimSpace(in.Payee)
		updated.Amount = in.Amount
		updated.Category = in.Category
		return st.UpdateOccurrence(ctx, updated)
	})
	if err != nil {
		return ledger.Occurrence{}, err
	}
	return updated, nil
}

func (s *Service) DeleteCharge(ctx context.Context, ownerID ledger.OwnerID, id ledger.OccurrenceID) error {
	return s.Store.DeleteOccurrence(ctx, ownerID, id)
}

// ListCharges returns every upcoming charge of the owner, by date.
func (s *Service) ListCharges(ctx context.Context, ownerID ledger.OwnerID) ([]ledger.Occurrence, error) {
	if _, err := s.Store.GetOwner(ctx, ownerID); err != nil {
		return nil, err
	}
	return s.Store.ListOccurrences(ctx, ownerID)
}
