package clinic

import "time"

type CreatePatientRequest struct {
	Name        string    `json:"name" validate:"required,max=200"`
	Phone       string    `json:"phone" validate:"omitempty,max=50"`
	Email       string    `json:"email" validate:"omitempty,email"`
	Gender      string    `json:"gender" validate:"omitempty,oneof=male female other"`
	DateOfBirth time.Time `json:"dateOfBirth"`
	Address     string    `json:"address" validate:"omitempty,max=500"`
}

type CreateDoctorRequest struct {
	Name           string `json:"name" validate:"required,max=200"`
	Specialization string `json:"specialization" validate:"omitempty,max=200"`
	Phone          string `json:"phone" validate:"omitempty,max=50"`
	Email          string `json:"email" validate:"omitempty,email"`
}

type CreateAppointmentRequest struct {
	PatientID string    `json:"patientId" validate:"required"`
	DoctorID  string    `json:"doctorId" validate:"required"`
	StartAt   time.Time `json:"startAt" validate:"required"`
	Reason    string    `json:"reason" validate:"omitempty,max=500"`
}

type UpdateStatusRequest struct {
	Status AppointmentStatus `json:"status" validate:"required,oneof=Scheduled WaitingPayment Finished Cancelled"`
}

// AppointmentFilter narrows ListAppointments.
type AppointmentFilter struct {
	DoctorID  string
	PatientID string
	Status    AppointmentStatus
	From      time.Time
	To        time.Time
}
