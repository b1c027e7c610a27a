package clinic

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carepoint-hms/carepoint/internal/platform/httpx"
	"github.com/carepoint-hms/carepoint/internal/rbac"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers patient, doctor and appointment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/patients", func(r chi.Router) {
		r.With(h.rbac.Require(rbac.ResourcePatients, rbac.LevelView)).Get("/", h.listPatients)
		r.With(h.rbac.Require(rbac.ResourcePatients, rbac.LevelEdit)).Post("/", h.createPatient)
		r.With(h.rbac.Require(rbac.ResourcePatients, rbac.LevelView)).Get("/{id}", h.showPatient)
	})
	r.Route("/doctors", func(r chi.Router) {
		r.With(h.rbac.Require(rbac.ResourceAppointments, rbac.LevelView)).Get("/", h.listDoctors)
		r.With(h.rbac.Require(rbac.ResourceSettings, rbac.LevelManage)).Post("/", h.createDoctor)
	})
	r.Route("/appointments", func(r chi.Router) {
		r.With(h.rbac.Require(rbac.ResourceAppointments, rbac.LevelView)).Get("/", h.listAppointments)
		r.With(h.rbac.Require(rbac.ResourceAppointments, rbac.LevelEdit)).Post("/", h.createAppointment)
		r.With(h.rbac.Require(rbac.ResourceAppointments, rbac.LevelView)).Get("/{id}", h.showAppointment)
		r.With(h.rbac.Require(rbac.ResourceAppointments, rbac.LevelEdit)).Put("/{id}/status", h.updateStatus)
	})
}

func (h *Handler) listPatients(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	patients, err := h.service.ListPatients(r.Context(), tenant, r.URL.Query().Get("search"))
	if err != nil {
		h.logger.Error("list patients", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, patients)
}

func (h *Handler) createPatient(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreatePatientRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.CreatePatient(r.Context(), tenant, req)
	if err != nil {
		h.logger.Warn("create patient", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) showPatient(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.GetPatient(r.Context(), tenant, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) listDoctors(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doctors, err := h.service.ListDoctors(r.Context(), tenant)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doctors)
}

func (h *Handler) createDoctor(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreateDoctorRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.CreateDoctor(r.Context(), tenant, req)
	if err != nil {
		h.logger.Warn("create doctor", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	filter := AppointmentFilter{
		DoctorID:  q.Get("doctor_id"),
		PatientID: q.Get("patient_id"),
		Status:    AppointmentStatus(q.Get("status")),
	}
	if raw := q.Get("date"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.RespondError(w, shared.Invalidf("date must be YYYY-MM-DD"))
			return
		}
		filter.From = day
		filter.To = day.Add(24 * time.Hour)
	}
	appts, err := h.service.ListAppointments(r.Context(), tenant, filter)
	if err != nil {
		h.logger.Error("list appointments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, appts)
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreateAppointmentRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	appt, err := h.service.CreateAppointment(r.Context(), tenant, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, appt)
}

func (h *Handler) showAppointment(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	appt, err := h.service.GetAppointment(r.Context(), tenant, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, appt)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateStatusRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	appt, err := h.service.UpdateAppointmentStatus(r.Context(), tenant, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, appt)
}
