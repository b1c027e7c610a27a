// Package clinic keeps patient, doctor and appointment records. Appointment
// status follows the payment status of the invoice raised for it.
package clinic

import "time"

const (
	collectionPatients     = "patients"
	collectionDoctors      = "doctors"
	collectionAppointments = "appointments"
)

// AppointmentStatus tracks a visit from booking to settlement.
type AppointmentStatus string

const (
	StatusScheduled      AppointmentStatus = "Scheduled"
	StatusWaitingPayment AppointmentStatus = "WaitingPayment"
	StatusFinished       AppointmentStatus = "Finished"
	StatusCancelled      AppointmentStatus = "Cancelled"
)

// Patient is a registered patient of one hospital.
type Patient struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	Gender      string    `json:"gender,omitempty"`
	DateOfBirth time.Time `json:"dateOfBirth,omitempty"`
	Address     string    `json:"address,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Doctor is a consulting practitioner.
type Doctor struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Email          string    `json:"email,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Appointment books a patient with a doctor.
type Appointment struct {
	ID        string            `json:"id"`
	PatientID string            `json:"patientId"`
	DoctorID  string            `json:"doctorId"`
	StartAt   time.Time         `json:"startAt"`
	Reason    string            `json:"reason,omitempty"`
	Status    AppointmentStatus `json:"status"`
	InvoiceID string            `json:"invoiceId,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}
