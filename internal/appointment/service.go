package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicbase/appointment-scheduling/internal/clock"
	"github.com/clinicbase/appointment-scheduling/internal/observability/metrics"
	redisclient "github.com/clinicbase/appointment-scheduling/internal/redis"
	"github.com/clinicbase/appointment-scheduling/internal/schedule"
	"github.com/clinicbase/appointment-scheduling/internal/slot"
	"github.com/clinicbase/appointment-scheduling/pkg/apperror"
)

const minutesPerDay = 24 * 60

// ProviderDirectory is the read-only provider lookup the coordinator
// consumes.
type ProviderDirectory interface {
	Provider(ctx context.Context, id uuid.UUID) (*schedule.Provider, error)
}

// SlotComputer produces the candidate slots for a provider's day.
type SlotComputer interface {
	ComputeSlots(ctx context.Context, providerID uuid.UUID, date time.Time) ([]slot.Slot, error)
}

// Service coordinates booking, rescheduling and cancellation. Each
// mutation holds a per-slot Redis lock around one serializable ledger
// transaction; transient isolation aborts are retried a bounded number
// of times, deterministic failures are surfaced immediately.
type Service struct {
	ledger       Ledger
	providers    ProviderDirectory
	planner      SlotComputer
	locker       redisclient.Locker
	clock        clock.Clock
	loc          *time.Location
	pendingCap   int
	maxRetries   int
	retryBackoff time.Duration
	metrics      *metrics.BookingMetrics
	logger       zerolog.Logger
}

// ServiceParams wires the coordinator's collaborators.
type ServiceParams struct {
	Ledger       Ledger
	Providers    ProviderDirectory
	Planner      SlotComputer
	Locker       redisclient.Locker
	Clock        clock.Clock
	Location     *time.Location
	PendingCap   int
	MaxRetries   int
	RetryBackoff time.Duration
	Metrics      *metrics.BookingMetrics
	Logger       zerolog.Logger
}

func NewService(p ServiceParams) *Service {
	if p.Clock == nil {
		p.Clock = clock.System()
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	if p.PendingCap <= 0 {
		p.PendingCap = 10
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return &Service{
		ledger:       p.Ledger,
		providers:    p.Providers,
		planner:      p.Planner,
		locker:       p.Locker,
		clock:        p.Clock,
		loc:          p.Location,
		pendingCap:   p.PendingCap,
		maxRetries:   p.MaxRetries,
		retryBackoff: p.RetryBackoff,
		metrics:      p.Metrics,
		logger:       p.Logger,
	}
}

// BookRequest is a validated caller intent to claim one slot.
type BookRequest struct {
	TenantID    uuid.UUID
	PatientID   uuid.UUID
	ProviderID  uuid.UUID
	Date        time.Time
	StartMinute int
	Reason      string
	Notes       string
}

// Book claims a slot for a patient and assigns the next token for the
// provider's day.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	started := time.Now()
	appt, err := s.book(ctx, req)
	s.observe("book", started, err)
	return appt, err
}

func (s *Service) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if req.StartMinute < 0 || req.StartMinute >= minutesPerDay {
		return nil, apperror.New(apperror.KindValidation, "start time must be a minute of day")
	}

	provider, err := s.providers.Provider(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	if !provider.IsAvailable {
		return nil, apperror.New(apperror.KindNotFound, "provider is not accepting appointments")
	}

	day := clock.CalendarDate(req.Date, s.loc)
	endMinute := req.StartMinute + provider.SlotDuration()
	if endMinute > minutesPerDay {
		return nil, apperror.New(apperror.KindValidation, "slot extends past end of day")
	}

	cand := Candidate{
		TenantID:    req.TenantID,
		PatientID:   req.PatientID,
		ProviderID:  req.ProviderID,
		Date:        day,
		StartMinute: req.StartMinute,
		EndMinute:   endMinute,
		Reason:      req.Reason,
		Notes:       req.Notes,
		PendingCap:  s.pendingCap,
		AsOf:        s.clock.Now().In(s.loc),
	}

	key := redisclient.SlotKey{ProviderID: req.ProviderID, Date: day, StartMinute: req.StartMinute}

	var created *Appointment
	err = s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		var createErr error
		created, createErr = s.createWithRetry(lockCtx, "book", func(c context.Context) (*Appointment, error) {
			return s.ledger.Create(c, cand)
		})
		return createErr
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, apperror.New(apperror.KindTransientConflict, "slot is currently being booked, please retry")
		}
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("provider_id", req.ProviderID.String()).
		Str("patient_id", req.PatientID.String()).
		Str("date", day.Format("2006-01-02")).
		Int("start_minute", req.StartMinute).
		Int("token", created.TokenNumber).
		Msg("appointment booked")

	return created, nil
}

// Reschedule moves an appointment to a new slot. Terminal appointments
// are rejected; the prior notes survive with an audit line appended.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newStartMinute int) (*Appointment, error) {
	started := time.Now()
	appt, err := s.reschedule(ctx, id, newDate, newStartMinute)
	s.observe("reschedule", started, err)
	return appt, err
}

func (s *Service) reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newStartMinute int) (*Appointment, error) {
	if newStartMinute < 0 || newStartMinute >= minutesPerDay {
		return nil, apperror.New(apperror.KindValidation, "start time must be a minute of day")
	}

	existing, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	provider, err := s.providers.Provider(ctx, existing.ProviderID)
	if err != nil {
		return nil, err
	}
	if !provider.IsAvailable {
		return nil, apperror.New(apperror.KindNotFound, "provider is not accepting appointments")
	}

	day := clock.CalendarDate(newDate, s.loc)
	endMinute := newStartMinute + provider.SlotDuration()
	if endMinute > minutesPerDay {
		return nil, apperror.New(apperror.KindValidation, "slot extends past end of day")
	}

	asOf := s.clock.Now().In(s.loc)
	key := redisclient.SlotKey{ProviderID: existing.ProviderID, Date: day, StartMinute: newStartMinute}

	var updated *Appointment
	err = s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		var moveErr error
		updated, moveErr = s.createWithRetry(lockCtx, "reschedule", func(c context.Context) (*Appointment, error) {
			return s.ledger.Reschedule(c, id, day, newStartMinute, endMinute, asOf)
		})
		return moveErr
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, apperror.New(apperror.KindTransientConflict, "slot is currently being booked, please retry")
		}
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("new_date", day.Format("2006-01-02")).
		Int("new_start_minute", newStartMinute).
		Int("token", updated.TokenNumber).
		Msg("appointment rescheduled")

	return updated, nil
}

// Cancel is a single atomic conditional update. Token numbers of the
// remaining siblings are left untouched.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	started := time.Now()
	err := s.ledger.Cancel(ctx, id, reason)
	s.observe("cancel", started, err)
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("reason", reason).
		Msg("appointment cancelled")
	return nil
}

// createWithRetry runs op, retrying transient isolation aborts up to
// the configured bound. Deterministic failures pass through untouched.
func (s *Service) createWithRetry(ctx context.Context, operation string, op func(ctx context.Context) (*Appointment, error)) (*Appointment, error) {
	for attempt := 0; ; attempt++ {
		appt, err := op(ctx)
		if err == nil {
			return appt, nil
		}
		if !apperror.Retryable(err) || attempt >= s.maxRetries {
			return nil, err
		}

		s.metrics.ObserveRetry(operation)
		s.logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt+1).
			Msg("serialization conflict, retrying")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s aborted: %w", operation, ctx.Err())
		case <-time.After(s.retryBackoff):
		}
	}
}

// GetAvailableSlots returns the day's candidate slots. Lack of
// availability is represented in the slot list, never as an error.
func (s *Service) GetAvailableSlots(ctx context.Context, providerID uuid.UUID, date time.Time) ([]slot.Slot, error) {
	return s.planner.ComputeSlots(ctx, providerID, date)
}

// GetAppointment loads one appointment by id.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.ledger.GetByID(ctx, id)
}

// ListAppointments pages a patient's appointments by time filter.
func (s *Service) ListAppointments(ctx context.Context, tenantID, patientID uuid.UUID, filter ListFilter, page, pageSize int) ([]Appointment, error) {
	if pageSize <= 0 {
		pageSize = 20 // default
	}
	if pageSize > 100 {
		pageSize = 100 // max
	}
	if page < 1 {
		page = 1
	}

	asOf := s.clock.Now().In(s.loc)
	offset := (page - 1) * pageSize

	appts, err := s.ledger.ListByPatient(ctx, tenantID, patientID, filter, asOf, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// MarkOverdueNoShows is run periodically by the sweeper worker: any
// appointment still scheduled past the grace window becomes a no-show.
func (s *Service) MarkOverdueNoShows(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := s.clock.Now().In(s.loc).Add(-grace)
	cutoffDate := clock.Midnight(cutoff, s.loc)
	cutoffMinute := clock.MinuteOfDay(cutoff, s.loc)

	n, err := s.ledger.MarkOverdueNoShows(ctx, cutoffDate, cutoffMinute)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int64("count", n).Msg("marked overdue appointments as no-show")
	}
	return n, nil
}

func (s *Service) observe(operation string, started time.Time, err error) {
	result := "success"
	if err != nil {
		if kind := apperror.KindOf(err); kind != "" {
			result = string(kind)
		} else {
			result = "error"
		}
	}
	s.metrics.ObserveOperation(operation, result)
	s.metrics.ObserveLatency(operation, time.Since(started).Seconds())
}
