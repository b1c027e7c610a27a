package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/money"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

const idempotencyModule = "ledger"

// AddPayment appends a payment to the document.
func (s *Service) AddPayment(ctx context.Context, tenant string, kind Kind, docID string, p Payment, idemKey string) (Monetary, error) {
	return s.ApplyPayment(ctx, tenant, kind, docID, PaymentDelta{Op: DeltaAdd, Payment: p}, idemKey)
}

// EditPayment replaces the payment with p.ID.
func (s *Service) EditPayment(ctx context.Context, tenant string, kind Kind, docID string, p Payment) (Monetary, error) {
	return s.ApplyPayment(ctx, tenant, kind, docID, PaymentDelta{Op: DeltaEdit, Payment: p}, "")
}

// DeletePayment removes the payment with paymentID.
func (s *Service) DeletePayment(ctx context.Context, tenant string, kind Kind, docID, paymentID string) (Monetary, error) {
	return s.ApplyPayment(ctx, tenant, kind, docID, PaymentDelta{Op: DeltaDelete, PaymentID: paymentID}, "")
}

// ApplyPayment changes the payment history of one document and rewrites
// amountPaid and paymentStatus in the same transaction. A registered cascade
// for kind updates dependent records before commit. A non-empty idemKey
// makes a repeated add fail with shared.ErrDuplicate instead of recording
// twice.
func (s *Service) ApplyPayment(ctx context.Context, tenant string, kind Kind, docID string, delta PaymentDelta, idemKey string) (Monetary, error) {
	ref, err := kind.Ref(tenant, docID)
	if err != nil {
		return Monetary{}, err
	}
	delta, err = s.prepare(ctx, delta)
	if err != nil {
		return Monetary{}, err
	}

	key := ""
	if idemKey != "" && s.idempotency != nil {
		key = fmt.Sprintf("%s:%s:%s:%s", tenant, kind, docID, idemKey)
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return Monetary{}, err
		}
	}

	var result Monetary
	err = s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var raw json.RawMessage
		if err := tx.Get(ctx, ref, &raw); err != nil {
			return notFound(err, kind, docID)
		}
		var current Monetary
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("ledger: decode %s: %w", ref, err)
		}
		history, err := applyDelta(current.PaymentHistory, delta)
		if err != nil {
			return err
		}
		paid := sumPayments(history)
		status := StatusFor(paid, current.TotalAmount)
		if err := tx.Update(ctx, ref, map[string]any{
			"amountPaid":     paid,
			"paymentStatus":  status,
			"paymentHistory": history,
			"updatedAt":      s.now().UTC(),
		}); err != nil {
			return err
		}
		if fn := s.cascade(kind); fn != nil {
			if err := fn(ctx, tx, tenant, raw, status); err != nil {
				return err
			}
		}
		result = current
		result.AmountPaid = paid
		result.PaymentStatus = status
		result.PaymentHistory = history
		return nil
	})
	if err != nil {
		if key != "" {
			_ = s.idempotency.Delete(ctx, key, idempotencyModule)
		}
		return Monetary{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenant,
			Action:   fmt.Sprintf("%s:payment:%s", kind, delta.Op),
			Entity:   string(kind),
			EntityID: docID,
			Meta: map[string]any{
				"paymentId":     paymentIDOf(delta),
				"amountPaid":    result.AmountPaid.String(),
				"paymentStatus": string(result.PaymentStatus),
			},
		})
	}
	return result, nil
}

// prepare fills generated fields before the transaction so a retried body
// writes the same payment.
func (s *Service) prepare(ctx context.Context, delta PaymentDelta) (PaymentDelta, error) {
	switch delta.Op {
	case DeltaAdd, DeltaEdit:
		if delta.Op == DeltaAdd && delta.Payment.ID == "" {
			delta.Payment.ID = uuid.NewString()
		}
		if delta.Op == DeltaEdit && delta.Payment.ID == "" {
			return delta, shared.Invalidf("payment id is required")
		}
		if delta.Payment.Date.IsZero() {
			delta.Payment.Date = s.now().UTC()
		}
		if delta.Payment.RecordedBy == "" {
			if p, ok := shared.PrincipalFromContext(ctx); ok {
				delta.Payment.RecordedBy = p.UserID
			}
		}
		delta.Payment.Amount = money.Round2(delta.Payment.Amount)
	case DeltaDelete:
		if delta.PaymentID == "" {
			return delta, shared.Invalidf("payment id is required")
		}
	default:
		return delta, shared.Invalidf("unknown payment operation %q", delta.Op)
	}
	return delta, nil
}

func applyDelta(history []Payment, delta PaymentDelta) ([]Payment, error) {
	out := make([]Payment, 0, len(history)+1)
	switch delta.Op {
	case DeltaAdd:
		out = append(out, history...)
		return append(out, delta.Payment), nil
	case DeltaEdit:
		found := false
		for _, p := range history {
			if p.ID == delta.Payment.ID {
				edited := delta.Payment
				if edited.RecordedBy == "" {
					edited.RecordedBy = p.RecordedBy
				}
				out = append(out, edited)
				found = true
				continue
			}
			out = append(out, p)
		}
		if !found {
			return nil, shared.NotFoundf("payment %s", delta.Payment.ID)
		}
		return out, nil
	case DeltaDelete:
		found := false
		for _, p := range history {
			if p.ID == delta.PaymentID {
				found = true
				continue
			}
			out = append(out, p)
		}
		if !found {
			return nil, shared.NotFoundf("payment %s", delta.PaymentID)
		}
		return out, nil
	}
	return nil, shared.Invalidf("unknown payment operation %q", delta.Op)
}

func sumPayments(history []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range history {
		total = total.Add(p.Amount)
	}
	return money.Round2(total)
}

func paymentIDOf(delta PaymentDelta) string {
	if delta.Op == DeltaDelete {
		return delta.PaymentID
	}
	return delta.Payment.ID
}
