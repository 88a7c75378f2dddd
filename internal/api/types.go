package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicbase/appointment-scheduling/internal/appointment"
)

type BookAppointmentRequest struct {
	PatientID   string `json:"patient_id"`
	ProviderID  string `json:"provider_id"`
	Date        string `json:"date"` // YYYY-MM-DD
	StartMinute int    `json:"start_minute"`
	Reason      string `json:"reason,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type RescheduleAppointmentRequest struct {
	NewDate        string `json:"new_date"` // YYYY-MM-DD
	NewStartMinute int    `json:"new_start_minute"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type CreateAbsenceRequest struct {
	StartDate   string `json:"start_date"` // YYYY-MM-DD
	EndDate     string `json:"end_date"`   // YYYY-MM-DD
	IsFullDay   bool   `json:"is_full_day"`
	StartMinute *int   `json:"start_minute,omitempty"`
	EndMinute   *int   `json:"end_minute,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID `json:"id"`
	PatientID          uuid.UUID `json:"patient_id"`
	ProviderID         uuid.UUID `json:"provider_id"`
	Date               string    `json:"date"`
	StartMinute        int       `json:"start_minute"`
	EndMinute          int       `json:"end_minute"`
	StartTime          string    `json:"start_time"`
	EndTime            string    `json:"end_time"`
	Status             string    `json:"status"`
	TokenNumber        int       `json:"token_number"`
	Reason             string    `json:"reason,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	CancellationReason *string   `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		ProviderID:         a.ProviderID,
		Date:               a.Date.Format("2006-01-02"),
		StartMinute:        a.StartMinute,
		EndMinute:          a.EndMinute,
		StartTime:          minuteClock(a.StartMinute),
		EndTime:            minuteClock(a.EndMinute),
		Status:             string(a.Status),
		TokenNumber:        a.TokenNumber,
		Reason:             a.Reason,
		Notes:              a.Notes,
		CancellationReason: a.CancellationReason,
		CreatedAt:          a.CreatedAt,
	}
}

type SlotResponse struct {
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Available   bool   `json:"available"`
}

type SlotListResponse struct {
	ProviderID uuid.UUID      `json:"provider_id"`
	Date       string         `json:"date"`
	Slots      []SlotResponse `json:"slots"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Page         int                   `json:"page"`
	PageSize     int                   `json:"page_size"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func minuteClock(m int) string {
	return time.Date(0, 1, 1, m/60, m%60, 0, 0, time.UTC).Format("15:04")
}
