package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/ledger"
	"github.com/carepoint-hms/carepoint/internal/shared"
	"github.com/carepoint-hms/carepoint/internal/tenancy"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages clinic records.
type Service struct {
	store docstore.Store
	quota tenancy.Checker
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service. quota and audit may be nil.
func NewService(store docstore.Store, quota tenancy.Checker, audit AuditPort) *Service {
	return &Service{store: store, quota: quota, audit: audit, now: time.Now}
}

func (s *Service) checkQuota(ctx context.Context, tenant string, res tenancy.Resource) error {
	if s.quota == nil {
		return nil
	}
	return s.quota.Check(ctx, tenant, res)
}

// CreatePatient registers a patient after the plan quota check.
func (s *Service) CreatePatient(ctx context.Context, tenant string, req CreatePatientRequest) (Patient, error) {
	if strings.TrimSpace(req.Name) == "" {
		return Patient{}, shared.Invalidf("patient name is required")
	}
	if err := s.checkQuota(ctx, tenant, tenancy.ResourcePatients); err != nil {
		return Patient{}, err
	}
	p := Patient{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Phone:       req.Phone,
		Email:       req.Email,
		Gender:      req.Gender,
		DateOfBirth: req.DateOfBirth,
		Address:     req.Address,
		CreatedAt:   s.now().UTC(),
	}
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Create(docstore.NewRef(tenant, collectionPatients, p.ID), p)
	})
	if err != nil {
		return Patient{}, err
	}
	s.record(ctx, tenant, "patient:create", "patient", p.ID, nil)
	return p, nil
}

// CreateDoctor registers a doctor after the plan quota check.
func (s *Service) CreateDoctor(ctx context.Context, tenant string, req CreateDoctorRequest) (Doctor, error) {
	if strings.TrimSpace(req.Name) == "" {
		return Doctor{}, shared.Invalidf("doctor name is required")
	}
	if err := s.checkQuota(ctx, tenant, tenancy.ResourceDoctors); err != nil {
		return Doctor{}, err
	}
	d := Doctor{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(req.Name),
		Specialization: req.Specialization,
		Phone:          req.Phone,
		Email:          req.Email,
		CreatedAt:      s.now().UTC(),
	}
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Create(docstore.NewRef(tenant, collectionDoctors, d.ID), d)
	})
	if err != nil {
		return Doctor{}, err
	}
	s.record(ctx, tenant, "doctor:create", "doctor", d.ID, nil)
	return d, nil
}

// CreateAppointment books a Scheduled appointment for an existing patient
// and doctor.
func (s *Service) CreateAppointment(ctx context.Context, tenant string, req CreateAppointmentRequest) (Appointment, error) {
	if req.PatientID == "" || req.DoctorID == "" {
		return Appointment{}, shared.Invalidf("patient and doctor are required")
	}
	if req.StartAt.IsZero() {
		return Appointment{}, shared.Invalidf("start time is required")
	}
	now := s.now().UTC()
	appt := Appointment{
		ID:        uuid.NewString(),
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		StartAt:   req.StartAt.UTC(),
		Reason:    req.Reason,
		Status:    StatusScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := tx.Get(ctx, docstore.NewRef(tenant, collectionPatients, req.PatientID), &Patient{}); err != nil {
			return notFound(err, "patient", req.PatientID)
		}
		if err := tx.Get(ctx, docstore.NewRef(tenant, collectionDoctors, req.DoctorID), &Doctor{}); err != nil {
			return notFound(err, "doctor", req.DoctorID)
		}
		return tx.Create(docstore.NewRef(tenant, collectionAppointments, appt.ID), appt)
	})
	if err != nil {
		return Appointment{}, err
	}
	s.record(ctx, tenant, "appointment:create", "appointment", appt.ID, map[string]any{"doctorId": appt.DoctorID})
	return appt, nil
}

// UpdateAppointmentStatus changes the status by hand. Finished and
// Cancelled appointments are final.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, tenant, id string, status AppointmentStatus) (Appointment, error) {
	switch status {
	case StatusScheduled, StatusWaitingPayment, StatusFinished, StatusCancelled:
	default:
		return Appointment{}, shared.Invalidf("unknown appointment status %q", status)
	}
	ref := docstore.NewRef(tenant, collectionAppointments, id)
	var appt Appointment
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := tx.Get(ctx, ref, &appt); err != nil {
			return notFound(err, "appointment", id)
		}
		if appt.Status == StatusFinished || appt.Status == StatusCancelled {
			return fmt.Errorf("appointment %s is %s: %w", id, appt.Status, shared.ErrAlreadyFinalState)
		}
		appt.Status = status
		appt.UpdatedAt = s.now().UTC()
		return tx.Update(ctx, ref, map[string]any{"status": status, "updatedAt": appt.UpdatedAt})
	})
	if err != nil {
		return Appointment{}, err
	}
	s.record(ctx, tenant, "appointment:status", "appointment", id, map[string]any{"status": string(status)})
	return appt, nil
}

// InvoiceCascade moves the appointment an invoice was raised for to
// Finished when the invoice is Paid and to WaitingPayment otherwise.
// Cancelled appointments are left alone. It is registered on the ledger
// for invoices.
func (s *Service) InvoiceCascade(ctx context.Context, tx docstore.Tx, tenant string, doc json.RawMessage, status ledger.PaymentStatus) error {
	var inv struct {
		ID            string `json:"id"`
		AppointmentID string `json:"appointmentId"`
	}
	if err := json.Unmarshal(doc, &inv); err != nil {
		return fmt.Errorf("clinic: decode invoice: %w", err)
	}
	if inv.AppointmentID == "" {
		return nil
	}
	ref := docstore.NewRef(tenant, collectionAppointments, inv.AppointmentID)
	var appt Appointment
	if err := tx.Get(ctx, ref, &appt); err != nil {
		return notFound(err, "appointment", inv.AppointmentID)
	}
	if appt.Status == StatusCancelled {
		return nil
	}
	next := StatusWaitingPayment
	if status == ledger.StatusPaid {
		next = StatusFinished
	}
	if appt.Status == next && appt.InvoiceID == inv.ID {
		return nil
	}
	return tx.Update(ctx, ref, map[string]any{
		"status":    next,
		"invoiceId": inv.ID,
		"updatedAt": s.now().UTC(),
	})
}

func (s *Service) GetPatient(ctx context.Context, tenant, id string) (Patient, error) {
	var p Patient
	if err := s.store.Get(ctx, docstore.NewRef(tenant, collectionPatients, id), &p); err != nil {
		return Patient{}, notFound(err, "patient", id)
	}
	return p, nil
}

func (s *Service) GetDoctor(ctx context.Context, tenant, id string) (Doctor, error) {
	var d Doctor
	if err := s.store.Get(ctx, docstore.NewRef(tenant, collectionDoctors, id), &d); err != nil {
		return Doctor{}, notFound(err, "doctor", id)
	}
	return d, nil
}

func (s *Service) GetAppointment(ctx context.Context, tenant, id string) (Appointment, error) {
	var a Appointment
	if err := s.store.Get(ctx, docstore.NewRef(tenant, collectionAppointments, id), &a); err != nil {
		return Appointment{}, notFound(err, "appointment", id)
	}
	return a, nil
}

// ListPatients returns patients ordered by name, optionally filtered by a
// case-insensitive name or phone fragment.
func (s *Service) ListPatients(ctx context.Context, tenant, search string) ([]Patient, error) {
	snaps, err := s.store.Query(ctx, docstore.Query{Tenant: tenant, Collection: collectionPatients, OrderBy: "name"})
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]Patient, 0, len(snaps))
	for _, snap := range snaps {
		var p Patient
		if err := snap.Decode(&p); err != nil {
			return nil, err
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) && !strings.Contains(p.Phone, needle) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Service) ListDoctors(ctx context.Context, tenant string) ([]Doctor, error) {
	snaps, err := s.store.Query(ctx, docstore.Query{Tenant: tenant, Collection: collectionDoctors, OrderBy: "name"})
	if err != nil {
		return nil, err
	}
	out := make([]Doctor, 0, len(snaps))
	for _, snap := range snaps {
		var d Doctor
		if err := snap.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ListAppointments returns appointments ordered by start time.
func (s *Service) ListAppointments(ctx context.Context, tenant string, f AppointmentFilter) ([]Appointment, error) {
	q := docstore.Query{Tenant: tenant, Collection: collectionAppointments, OrderBy: "startAt"}
	if f.DoctorID != "" {
		q = q.Where("doctorId", docstore.OpEq, f.DoctorID)
	}
	if f.PatientID != "" {
		q = q.Where("patientId", docstore.OpEq, f.PatientID)
	}
	if f.Status != "" {
		q = q.Where("status", docstore.OpEq, string(f.Status))
	}
	if !f.From.IsZero() {
		q = q.Where("startAt", docstore.OpGte, f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("startAt", docstore.OpLt, f.To.UTC())
	}
	snaps, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]Appointment, 0, len(snaps))
	for _, snap := range snaps {
		var a Appointment
		if err := snap.Decode(&a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, tenant, action, entity, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{TenantID: tenant, Action: action, Entity: entity, EntityID: id, Meta: meta})
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return shared.NotFoundf("%s %s", entity, id)
	}
	return err
}
