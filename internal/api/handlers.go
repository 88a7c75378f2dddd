package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicbase/appointment-scheduling/internal/appointment"
	"github.com/clinicbase/appointment-scheduling/internal/schedule"
)

const dateLayout = "2006-01-02"

func getSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.GetAvailableSlots(r.Context(), providerID, date)
		if err != nil {
			writeAppError(w, err)
			return
		}

		resp := SlotListResponse{
			ProviderID: providerID,
			Date:       date.Format(dateLayout),
			Slots:      make([]SlotResponse, 0, len(slots)),
		}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, SlotResponse{
				StartMinute: s.StartMinute,
				EndMinute:   s.EndMinute,
				StartTime:   minuteClock(s.StartMinute),
				EndTime:     minuteClock(s.EndMinute),
				Available:   s.Available,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := GetTenantID(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_tenant", "tenant not resolved")
			return
		}

		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			TenantID:    tenantID,
			PatientID:   patientID,
			ProviderID:  providerID,
			Date:        date,
			StartMinute: req.StartMinute,
			Reason:      req.Reason,
			Notes:       req.Notes,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		newDate, err := time.Parse(dateLayout, req.NewDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "new_date must be YYYY-MM-DD")
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, newDate, req.NewStartMinute)
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req CancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if err := svc.Cancel(r.Context(), id, req.Reason); err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusNoContent, nil)
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := GetTenantID(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_tenant", "tenant not resolved")
			return
		}

		patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		filter := appointment.ListFilter(r.URL.Query().Get("filter"))
		switch filter {
		case appointment.FilterUpcoming, appointment.FilterPast, appointment.FilterAll:
		case "":
			filter = appointment.FilterAll
		default:
			writeError(w, http.StatusBadRequest, "invalid_filter", "filter must be upcoming, past or all")
			return
		}

		page := parseIntQuery(r, "page", 1)
		pageSize := parseIntQuery(r, "page_size", 20)

		appts, err := svc.ListAppointments(r.Context(), tenantID, patientID, filter, page, pageSize)
		if err != nil {
			writeAppError(w, err)
			return
		}

		resp := AppointmentListResponse{
			Appointments: make([]AppointmentResponse, 0, len(appts)),
			Page:         page,
			PageSize:     pageSize,
		}
		for i := range appts {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appts[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func createAbsenceHandler(registry *schedule.PgAbsenceRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		var req CreateAbsenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		startDate, err := time.Parse(dateLayout, req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "start_date must be YYYY-MM-DD")
			return
		}
		endDate, err := time.Parse(dateLayout, req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "end_date must be YYYY-MM-DD")
			return
		}

		created, err := registry.CreateAbsence(r.Context(), &schedule.Absence{
			ProviderID:  providerID,
			StartDate:   startDate,
			EndDate:     endDate,
			IsFullDay:   req.IsFullDay,
			StartMinute: req.StartMinute,
			EndMinute:   req.EndMinute,
			Reason:      req.Reason,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, created)
	}
}

func cancelAbsenceHandler(registry *schedule.PgAbsenceRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_absence_id", "id must be a valid UUID")
			return
		}

		if err := registry.CancelAbsence(r.Context(), id); err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusNoContent, nil)
	}
}

func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
