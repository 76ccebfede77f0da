package patient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/carelink/patient-platform/pkg/config"
	"github.com/carelink/patient-platform/pkg/interfaces"
	"github.com/carelink/patient-platform/pkg/logger"
	"github.com/carelink/patient-platform/pkg/monitoring"
	"github.com/carelink/patient-platform/pkg/types"
)

const dateLayout = "2006-01-02"

// Service orchestrates patient management. Creation runs a fixed sequence:
// store the record, provision billing, publish the event. The record store
// is the only step that can abort a creation; billing failures degrade the
// outcome and publish failures are logged and absorbed.
type Service struct {
	repo       interfaces.PatientRepository
	billing    interfaces.BillingClient
	publisher  interfaces.EventPublisher
	billingCfg config.BillingConfig
	logger     *logger.Logger
	metrics    *monitoring.MetricsCollector
	validate   *validator.Validate
}

// NewService creates a new patient service
func NewService(
	repo interfaces.PatientRepository,
	billing interfaces.BillingClient,
	publisher interfaces.EventPublisher,
	billingCfg config.BillingConfig,
	log *logger.Logger,
	metrics *monitoring.MetricsCollector,
) *Service {
	return &Service{
		repo:       repo,
		billing:    billing,
		publisher:  publisher,
		billingCfg: billingCfg,
		logger:     log,
		metrics:    metrics,
		validate:   validator.New(),
	}
}

// CreatePatient creates a patient record, provisions its billing account and
// publishes the created event.
//
// A store failure aborts the whole creation: no billing call is made and no
// event is published. Once the record is stored the creation has succeeded;
// a billing failure only marks the result degraded, and a publish failure
// is logged without affecting the response.
func (s *Service) CreatePatient(ctx context.Context, input *types.CreatePatientInput) (*types.CreationResult, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	dateOfBirth, err := time.Parse(dateLayout, input.DateOfBirth)
	if err != nil {
		return nil, types.NewValidationError(types.ErrCodeValidationFailed, "invalid date of birth", map[string]interface{}{
			"dateOfBirth": "must be formatted as YYYY-MM-DD",
		})
	}
	registrationDate, err := time.Parse(dateLayout, input.RegistrationDate)
	if err != nil {
		return nil, types.NewValidationError(types.ErrCodeValidationFailed, "invalid registration date", map[string]interface{}{
			"registrationDate": "must be formatted as YYYY-MM-DD",
		})
	}

	draft := &types.Patient{
		Name:             strings.TrimSpace(input.Name),
		Email:            normalizeEmail(input.Email),
		Address:          strings.TrimSpace(input.Address),
		DateOfBirth:      dateOfBirth,
		RegistrationDate: registrationDate,
	}

	stored, err := s.repo.Create(ctx, draft)
	if err != nil {
		outcome := "store_failed"
		var domainErr *types.DomainError
		if errors.As(err, &domainErr) && domainErr.Kind == types.ErrorKindConflict {
			outcome = "conflict"
		}
		s.metrics.RecordPatientCreation(outcome, "none")
		return nil, err
	}

	s.logger.WithStage("stored").WithField("patient_id", stored.ID).Info("Patient record created")

	billing := types.BillingInfo{Provisioned: true}
	if err := s.provisionBilling(ctx, stored); err != nil {
		s.logger.WithStage("billing_degraded").WithError(err).WithField("patient_id", stored.ID).
			Warn("Billing provisioning failed, patient created with degraded billing")
		billing = types.BillingInfo{
			Degraded: true,
			Reason:   err.Error(),
		}
	} else {
		if err := s.repo.UpdateBillingStatus(ctx, stored.ID, types.BillingStatusProvisioned); err != nil {
			// The account exists downstream; a later billing retry
			// reconciles the stale flag
			s.logger.WithStage("billed").WithError(err).WithField("patient_id", stored.ID).
				Error("Failed to record provisioned billing status")
		}
		stored.BillingStatus = types.BillingStatusProvisioned
	}

	s.publishCreatedEvent(ctx, stored)

	outcome := "provisioned"
	if billing.Degraded {
		outcome = "degraded"
	}
	s.metrics.RecordPatientCreation("created", outcome)

	return &types.CreationResult{
		Patient: stored,
		Billing: billing,
	}, nil
}

// GetPatient retrieves a patient by ID
func (s *Service) GetPatient(ctx context.Context, id string) (*types.Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// ListPatients retrieves all patients
func (s *Service) ListPatients(ctx context.Context) ([]*types.Patient, error) {
	return s.repo.List(ctx)
}

// UpdatePatient replaces a patient's mutable fields. The identifier,
// registration date and billing status are not updatable.
func (s *Service) UpdatePatient(ctx context.Context, id string, input *types.UpdatePatientInput) (*types.Patient, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	dateOfBirth, err := time.Parse(dateLayout, input.DateOfBirth)
	if err != nil {
		return nil, types.NewValidationError(types.ErrCodeValidationFailed, "invalid date of birth", map[string]interface{}{
			"dateOfBirth": "must be formatted as YYYY-MM-DD",
		})
	}

	return s.repo.Update(ctx, id, &types.PatientUpdate{
		Name:        strings.TrimSpace(input.Name),
		Email:       normalizeEmail(input.Email),
		Address:     strings.TrimSpace(input.Address),
		DateOfBirth: dateOfBirth,
	})
}

// DeletePatient removes a patient record
func (s *Service) DeletePatient(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// RetryBilling re-runs billing provisioning for a patient whose account was
// never provisioned. Already-provisioned patients are returned unchanged.
func (s *Service) RetryBilling(ctx context.Context, id string) (*types.Patient, error) {
	patient, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patient.BillingStatus == types.BillingStatusProvisioned {
		return patient, nil
	}

	if err := s.provisionBilling(ctx, patient); err != nil {
		var rejectedErr *types.RejectedBillingError
		if errors.As(err, &rejectedErr) {
			return nil, types.NewExternalError(types.ErrCodeBillingRejected,
				"billing subsystem rejected the account request", err)
		}
		return nil, types.NewExternalError(types.ErrCodeBillingUnavailable,
			"billing subsystem is unavailable", err)
	}

	if err := s.repo.UpdateBillingStatus(ctx, id, types.BillingStatusProvisioned); err != nil {
		return nil, err
	}

	patient.BillingStatus = types.BillingStatusProvisioned
	s.logger.WithField("patient_id", id).Info("Billing account provisioned on retry")
	return patient, nil
}

// provisionBilling makes the billing call, retrying transient failures with
// a linear backoff. Rejections stop immediately: the subsystem has already
// made its decision and repeating the request will not change it.
func (s *Service) provisionBilling(ctx context.Context, patient *types.Patient) error {
	backoff := time.Duration(s.billingCfg.RetryBackoffMS) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt <= s.billingCfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * backoff):
			case <-ctx.Done():
				return lastErr
			}
		}

		start := time.Now()
		err := s.billing.CreateAccount(ctx, patient)
		if err == nil {
			s.metrics.RecordBillingCall("ok", time.Since(start))
			return nil
		}
		lastErr = err

		var transientErr *types.TransientBillingError
		if !errors.As(err, &transientErr) {
			s.metrics.RecordBillingCall("rejected", time.Since(start))
			return err
		}

		s.metrics.RecordBillingCall("transient", time.Since(start))
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"patient_id": patient.ID,
			"attempt":    attempt + 1,
		}).Warn("Transient billing failure")
	}

	return lastErr
}

// publishCreatedEvent enqueues the patient created event. Publishing gets a
// single attempt; a failure is logged and counted but never surfaced,
// because the creation has already succeeded.
func (s *Service) publishCreatedEvent(ctx context.Context, patient *types.Patient) {
	event := &types.PatientCreatedEvent{
		EventID:   uuid.New().String(),
		EventType: types.EventTypePatientCreated,
		PatientID: patient.ID,
		Name:      patient.Name,
		Email:     patient.Email,
		CreatedAt: patient.CreatedAt,
	}

	if err := s.publisher.Enqueue(ctx, event); err != nil {
		s.metrics.RecordEventPublish(event.EventType, "failed")
		s.logger.WithStage("publish_failed").WithError(err).WithFields(map[string]interface{}{
			"patient_id": patient.ID,
			"event_id":   event.EventID,
		}).Warn("Failed to publish patient created event")
		return
	}

	s.metrics.RecordEventPublish(event.EventType, "published")
}

// validateInput runs struct validation and converts failures into a
// validation error with per-field details.
func (s *Service) validateInput(input interface{}) error {
	if err := s.validate.Struct(input); err != nil {
		details := map[string]interface{}{}
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, fieldErr := range validationErrs {
				details[fieldErr.Field()] = fieldErr.Tag()
			}
		}
		return types.NewValidationError(types.ErrCodeValidationFailed, "validation failed", details)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
