package types

import "time"

// BillingStatus tracks whether a billing account has been provisioned
// for a patient. The platform holds no other billing state.
type BillingStatus string

const (
	BillingStatusPending     BillingStatus = "pending"
	BillingStatusProvisioned BillingStatus = "provisioned"
)

// Patient represents a patient record. The identifier is assigned by the
// record store at creation and never changes afterwards.
type Patient struct {
	ID               string        `json:"id" db:"id"`
	Name             string        `json:"name" db:"name"`
	Email            string        `json:"email" db:"email"`
	Address          string        `json:"address" db:"address"`
	DateOfBirth      time.Time     `json:"date_of_birth" db:"date_of_birth"`
	RegistrationDate time.Time     `json:"registration_date" db:"registration_date"`
	BillingStatus    BillingStatus `json:"billing_status" db:"billing_status"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// CreatePatientInput is the payload for creating a patient. The
// registration date is required here and only here.
type CreatePatientInput struct {
	Name             string `json:"name" validate:"required,min=1,max=200"`
	Email            string `json:"email" validate:"required,email"`
	Address          string `json:"address" validate:"max=500"`
	DateOfBirth      string `json:"dateOfBirth" validate:"required,datetime=2006-01-02"`
	RegistrationDate string `json:"registrationDate" validate:"required,datetime=2006-01-02"`
}

// UpdatePatientInput is the payload for updating a patient. It carries no
// registration date: that field is fixed at creation.
type UpdatePatientInput struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Email       string `json:"email" validate:"required,email"`
	Address     string `json:"address" validate:"max=500"`
	DateOfBirth string `json:"dateOfBirth" validate:"required,datetime=2006-01-02"`
}

// PatientUpdate carries the new values for a patient's mutable fields.
// Full-replace semantics: every field is written.
type PatientUpdate struct {
	Name        string
	Email       string
	Address     string
	DateOfBirth time.Time
}

// BillingInfo annotates a creation response with the outcome of the
// billing provisioning step.
type BillingInfo struct {
	Provisioned bool   `json:"provisioned"`
	Degraded    bool   `json:"degraded"`
	Reason      string `json:"reason,omitempty"`
}

// CreationResult is the orchestrator's outcome for a successful creation.
// A degraded billing step still counts as success: the record exists.
type CreationResult struct {
	Patient *Patient    `json:"patient"`
	Billing BillingInfo `json:"billing"`
}
