package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/masterdata/taxes"
	"github.com/carepoint-hms/carepoint/internal/money"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles monetary documents and their payments.
type Service struct {
	store       docstore.Store
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	now         func() time.Time

	mu       sync.RWMutex
	cascades map[Kind]CascadeFunc
}

// NewService builds Service instance. audit and idem may be nil.
func NewService(store docstore.Store, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{
		store:       store,
		audit:       audit,
		idempotency: idem,
		now:         time.Now,
		cascades:    make(map[Kind]CascadeFunc),
	}
}

// SetCascade registers fn to run whenever the payment status of a kind
// document is recomputed.
func (s *Service) SetCascade(kind Kind, fn CascadeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cascades[kind] = fn
}

func (s *Service) cascade(kind Kind) CascadeFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cascades[kind]
}

// ResolveTaxGroup loads a tax group and its member rates.
func (s *Service) ResolveTaxGroup(ctx context.Context, tenant, groupID string) (taxes.TaxGroup, []money.TaxRate, error) {
	if groupID == "" {
		return taxes.TaxGroup{}, nil, nil
	}
	return taxes.LoadGroup(ctx, s.store, tenant, groupID)
}

// ComputeTotals resolves the tax group through g and derives the totals
// block. g is usually the open transaction of the caller.
func ComputeTotals(ctx context.Context, g taxes.Getter, tenant string, subtotal decimal.Decimal, taxGroupID string, discountPct decimal.Decimal) (money.Totals, error) {
	rates, err := taxes.ResolveRates(ctx, g, tenant, taxGroupID)
	if err != nil {
		return money.Totals{}, err
	}
	return money.ComputeTotals(subtotal, rates, discountPct), nil
}

func subtotalOf(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount())
	}
	return money.Round2(total)
}

func documentKind(kind Kind) error {
	if kind != KindInvoice && kind != KindExpense {
		return shared.Invalidf("documents of kind %q are created by their own module", kind)
	}
	return nil
}

// CreateDocument stores a new invoice or expense with computed totals and
// an empty payment history. The kind's cascade runs in the same transaction.
func (s *Service) CreateDocument(ctx context.Context, tenant string, kind Kind, input DocumentInput) (Document, error) {
	if err := documentKind(kind); err != nil {
		return Document{}, err
	}
	if strings.TrimSpace(input.PartyName) == "" {
		return Document{}, shared.Invalidf("party name is required")
	}
	if len(input.Lines) == 0 {
		return Document{}, shared.Invalidf("at least one line is required")
	}
	now := s.now().UTC()
	doc := Document{
		ID:            uuid.NewString(),
		Kind:          kind,
		Number:        input.Number,
		PartyName:     input.PartyName,
		PatientID:     input.PatientID,
		AppointmentID: input.AppointmentID,
		Category:      input.Category,
		Lines:         input.Lines,
		TaxGroupID:    input.TaxGroupID,
		DiscountPct:   input.DiscountPct,
		DueDate:       input.DueDate,
		CreatedBy:     input.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if doc.Number == "" {
		doc.Number = fmt.Sprintf("%s-%s", strings.ToUpper(string(kind[:3])), now.Format("20060102150405"))
	}
	if doc.DueDate.IsZero() {
		doc.DueDate = now
	}
	ref, err := kind.Ref(tenant, doc.ID)
	if err != nil {
		return Document{}, err
	}
	err = s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		totals, err := ComputeTotals(ctx, tx, tenant, subtotalOf(doc.Lines), doc.TaxGroupID, doc.DiscountPct)
		if err != nil {
			return err
		}
		doc.Monetary = NewMonetary(totals)
		if err := tx.Create(ref, doc); err != nil {
			return err
		}
		fn := s.cascade(kind)
		if fn == nil {
			return nil
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return fn(ctx, tx, tenant, raw, doc.PaymentStatus)
	})
	if err != nil {
		return Document{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenant,
			Action:   fmt.Sprintf("%s:create", kind),
			Entity:   string(kind),
			EntityID: doc.ID,
			Meta:     map[string]any{"number": doc.Number, "total": doc.TotalAmount.String()},
		})
	}
	return doc, nil
}

// Retotal recomputes the totals of an invoice or expense after its lines,
// tax group or discount changed. The payment history is kept and the
// status is re-derived from the existing amountPaid.
func (s *Service) Retotal(ctx context.Context, tenant string, kind Kind, id string, input RetotalInput) (Document, error) {
	if err := documentKind(kind); err != nil {
		return Document{}, err
	}
	if len(input.Lines) == 0 {
		return Document{}, shared.Invalidf("at least one line is required")
	}
	ref, err := kind.Ref(tenant, id)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	err = s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var raw json.RawMessage
		if err := tx.Get(ctx, ref, &raw); err != nil {
			return notFound(err, kind, id)
		}
		doc = Document{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		totals, err := ComputeTotals(ctx, tx, tenant, subtotalOf(input.Lines), input.TaxGroupID, input.DiscountPct)
		if err != nil {
			return err
		}
		doc.Lines = input.Lines
		doc.TaxGroupID = input.TaxGroupID
		doc.DiscountPct = input.DiscountPct
		doc.Totals = totals
		doc.PaymentStatus = StatusFor(doc.AmountPaid, totals.TotalAmount)
		doc.UpdatedAt = s.now().UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		if fn := s.cascade(kind); fn != nil {
			return fn(ctx, tx, tenant, raw, doc.PaymentStatus)
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenant,
			Action:   fmt.Sprintf("%s:retotal", kind),
			Entity:   string(kind),
			EntityID: id,
			Meta:     map[string]any{"total": doc.TotalAmount.String(), "status": string(doc.PaymentStatus)},
		})
	}
	return doc, nil
}

// Get loads an invoice or expense.
func (s *Service) Get(ctx context.Context, tenant string, kind Kind, id string) (Document, error) {
	if err := documentKind(kind); err != nil {
		return Document{}, err
	}
	ref, err := kind.Ref(tenant, id)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := s.store.Get(ctx, ref, &doc); err != nil {
		return Document{}, notFound(err, kind, id)
	}
	return doc, nil
}

// GetMonetary loads the totals and payment block of any monetary document.
func (s *Service) GetMonetary(ctx context.Context, tenant string, kind Kind, id string) (Monetary, error) {
	ref, err := kind.Ref(tenant, id)
	if err != nil {
		return Monetary{}, err
	}
	var m Monetary
	if err := s.store.Get(ctx, ref, &m); err != nil {
		return Monetary{}, notFound(err, kind, id)
	}
	return m, nil
}

// ListFilter narrows List.
type ListFilter struct {
	Status    PaymentStatus
	PatientID string
	Limit     int
}

// List returns invoices or expenses, newest first.
func (s *Service) List(ctx context.Context, tenant string, kind Kind, filter ListFilter) ([]Document, error) {
	if err := documentKind(kind); err != nil {
		return nil, err
	}
	collection, _ := kind.Collection()
	q := docstore.Query{Tenant: tenant, Collection: collection, OrderBy: "createdAt", Desc: true, Limit: filter.Limit}
	if filter.Status != "" {
		q = q.Where("paymentStatus", docstore.OpEq, string(filter.Status))
	}
	if filter.PatientID != "" {
		q = q.Where("patientId", docstore.OpEq, filter.PatientID)
	}
	snaps, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		var doc Document
		if err := snap.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Aging groups outstanding balances of kind documents by days past due.
func (s *Service) Aging(ctx context.Context, tenant string, kind Kind, asOf time.Time) (AgingBucket, error) {
	collection, err := kind.Collection()
	if err != nil {
		return AgingBucket{}, err
	}
	snaps, err := s.store.Query(ctx, docstore.Query{Tenant: tenant, Collection: collection}.
		Where("paymentStatus", docstore.OpNe, string(StatusPaid)))
	if err != nil {
		return AgingBucket{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	bucket := AgingBucket{}
	for _, snap := range snaps {
		var doc struct {
			Monetary
			DueDate   time.Time `json:"dueDate"`
			CreatedAt time.Time `json:"createdAt"`
			Status    string    `json:"status"`
		}
		if err := snap.Decode(&doc); err != nil {
			return AgingBucket{}, err
		}
		if doc.Status == "Cancelled" {
			continue
		}
		due := doc.DueDate
		if due.IsZero() {
			due = doc.CreatedAt
		}
		amount := doc.Outstanding()
		days := int(asOf.Sub(due).Hours() / 24)
		switch {
		case days <= 0:
			bucket.Current = bucket.Current.Add(amount)
		case days <= 30:
			bucket.Bucket30 = bucket.Bucket30.Add(amount)
		case days <= 60:
			bucket.Bucket60 = bucket.Bucket60.Add(amount)
		case days <= 90:
			bucket.Bucket90 = bucket.Bucket90.Add(amount)
		default:
			bucket.Bucket120 = bucket.Bucket120.Add(amount)
		}
	}
	return bucket, nil
}

func notFound(err error, kind Kind, id string) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return shared.NotFoundf("%s %s", kind, id)
	}
	return err
}
