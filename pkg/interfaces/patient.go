package interfaces

import (
	"context"

	"github.com/carelink/patient-platform/pkg/types"
)

// PatientService defines the interface for patient management. CreatePatient
// runs the full creation workflow (store, bill, publish); the remaining
// operations are pass-throughs to the record store.
type PatientService interface {
	CreatePatient(ctx context.Context, input *types.CreatePatientInput) (*types.CreationResult, error)
	GetPatient(ctx context.Context, id string) (*types.Patient, error)
	ListPatients(ctx context.Context) ([]*types.Patient, error)
	UpdatePatient(ctx context.Context, id string, input *types.UpdatePatientInput) (*types.Patient, error)
	DeletePatient(ctx context.Context, id string) error
	RetryBilling(ctx context.Context, id string) (*types.Patient, error)
}

// PatientRepository defines the interface for patient persistence. Create
// assigns the identifier and enforces email uniqueness atomically.
type PatientRepository interface {
	Create(ctx context.Context, draft *types.Patient) (*types.Patient, error)
	GetByID(ctx context.Context, id string) (*types.Patient, error)
	List(ctx context.Context) ([]*types.Patient, error)
	Update(ctx context.Context, id string, updates *types.PatientUpdate) (*types.Patient, error)
	Delete(ctx context.Context, id string) error
	UpdateBillingStatus(ctx context.Context, id string, status types.BillingStatus) error
}

// BillingClient wraps the single remote call that provisions a billing
// account. Failures come back as *types.TransientBillingError or
// *types.RejectedBillingError; the caller owns retry policy.
type BillingClient interface {
	CreateAccount(ctx context.Context, patient *types.Patient) error
}

// EventPublisher enqueues events onto the broker. One send per call,
// bounded by the context; no internal retries.
type EventPublisher interface {
	Enqueue(ctx context.Context, event *types.PatientCreatedEvent) error
}
