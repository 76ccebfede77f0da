package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/carelink/patient-platform/pkg/logger"
	"github.com/carelink/patient-platform/pkg/monitoring"
	"github.com/carelink/patient-platform/pkg/types"
)

// PatientRepository handles patient record persistence
type PatientRepository struct {
	db      *sql.DB
	logger  *logger.Logger
	metrics *monitoring.MetricsCollector
}

// NewPatientRepository creates a new patient repository
func NewPatientRepository(db *sql.DB, logger *logger.Logger, metrics *monitoring.MetricsCollector) *PatientRepository {
	return &PatientRepository{
		db:      db,
		logger:  logger,
		metrics: metrics,
	}
}

// observe records the latency of a single statement under the given
// operation label. Call it with defer so the measurement covers scans too.
func (r *PatientRepository) observe(operation string, start time.Time) {
	r.metrics.RecordDBQuery(operation, time.Since(start))
}

// Create inserts a new patient record. The record ID is assigned here and
// never changes afterwards. A duplicate email surfaces as a conflict error;
// the unique index on patients.email decides the winner when two creations
// race on the same address.
func (r *PatientRepository) Create(ctx context.Context, draft *types.Patient) (*types.Patient, error) {
	defer r.observe("insert", time.Now())

	patient := *draft
	patient.ID = uuid.New().String()
	patient.BillingStatus = types.BillingStatusPending
	patient.CreatedAt = time.Now().UTC()
	patient.UpdatedAt = patient.CreatedAt

	query := `
		INSERT INTO patients (
			id, name, email, address, date_of_birth,
			registration_date, billing_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		patient.ID,
		patient.Name,
		patient.Email,
		patient.Address,
		patient.DateOfBirth,
		patient.RegistrationDate,
		patient.BillingStatus,
		patient.CreatedAt,
		patient.UpdatedAt,
	).Scan(&patient.ID, &patient.CreatedAt, &patient.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation
				return nil, types.NewConflictError(types.ErrCodeEmailExists,
					fmt.Sprintf("patient with email %s already exists", patient.Email))
			}
		}
		return nil, types.NewInternalError(types.ErrCodeStoreFailure, "failed to create patient", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"patient_id": patient.ID,
		"email":      patient.Email,
	}).Info("Created patient record")

	return &patient, nil
}

// GetByID retrieves a patient by ID
func (r *PatientRepository) GetByID(ctx context.Context, id string) (*types.Patient, error) {
	defer r.observe("select_by_id", time.Now())

	query := `
		SELECT id, name, email, address, date_of_birth,
			   registration_date, billing_status, created_at, updated_at
		FROM patients
		WHERE id = $1`

	var patient types.Patient
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&patient.ID,
		&patient.Name,
		&patient.Email,
		&patient.Address,
		&patient.DateOfBirth,
		&patient.RegistrationDate,
		&patient.BillingStatus,
		&patient.CreatedAt,
		&patient.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodePatientNotFound,
				fmt.Sprintf("patient not found: %s", id))
		}
		return nil, types.NewInternalError(types.ErrCodeStoreFailure, "failed to get patient", err)
	}

	return &patient, nil
}

// List returns all patient records ordered by creation time
func (r *PatientRepository) List(ctx context.Context) ([]*types.Patient, error) {
	defer r.observe("list", time.Now())

	query := `
		SELECT id, name, email, address, date_of_birth,
			   registration_date, billing_status, created_at, updated_at
		FROM patients
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeStoreFailure, "failed to list patients", err)
	}
	defer rows.Close()

	patients := []*types.Patient{}
	for rows.Next() {
		var patient types.Patient
		err := rows.Scan(
			&patient.ID,
			&patient.Name,
			&patient.Email,
			&patient.Address,
			&patient.DateOfBirth,
			&patient.RegistrationDate,
			&patient.BillingStatus,
			&patient.CreatedAt,
			&patient.UpdatedAt,
		)
		if err != nil {
			return nil, types.NewInternalError(types.ErrCodeStoreFailure, "failed to scan patient row", err)
		}
		patients = append(patients, &patient)
	}

	if err := rows.Err(); err != nil {
		return nil, types.NewInternalError(types.ErrCodeStoreFailure, "error iterating patient rows", err)
	}

	return patients, nil
}

// Update replaces the mutable fields of a patient record. The ID, billing
// status and registration date are never touched by an update.
func (r *PatientRepository) Update(ctx context.Context, id string, update *types.PatientUpdate) (*types.Patient, error) {
	defer r.observe("update", time.Now())

	query := `
		UPDATE patients
		SET name = $1, email = $2, address = $3, date_of_birth = $4, updated_at = $5
		WHERE id = $6
		RETURNING id, name, email, address, date_of_birth,
				  registration_date, billing_status, created_at, updated_at`

	var patient types.Patient
	err := r.db.QueryRowContext(ctx, query,
		update.Name,
		update.Email,
		update.Address,
		update.DateOfBirth,
		time.Now().UTC(),
		id,
	).Scan(
		&patient.ID,
		&patient.Name,
		&patient.Email,
		&patient.Address,
		&patient.DateOfBirth,
		&patient.RegistrationDate,
		&patient.BillingStatus,
		&patient.CreatedAt,
		&patient.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodePatientNotFound,
				fmt.Sprintf("patient not found: %s", id))
		}
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation
				return nil, types.NewConflictError(types.ErrCodeEmailExists,
					fmt.Sprintf("patient with email %s already exists", update.Email))
			}
		}
		return nil, types.NewInternalError(types.ErrCodeStoreFailure, "failed to update patient", err)
	}

	r.logger.WithField("patient_id", id).Info("Updated patient record")
	return &patient, nil
}

// Delete removes a patient record
func (r *PatientRepository) Delete(ctx context.Context, id string) error {
	defer r.observe("delete", time.Now())

	query := `DELETE FROM patients WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return types.NewInternalError(types.ErrCodeStoreFailure, "failed to delete patient", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return types.NewInternalError(types.ErrCodeStoreFailure, "failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError(types.ErrCodePatientNotFound,
			fmt.Sprintf("patient not found: %s", id))
	}

	r.logger.WithField("patient_id", id).Info("Deleted patient record")
	return nil
}

// UpdateBillingStatus records the outcome of billing provisioning for a patient
func (r *PatientRepository) UpdateBillingStatus(ctx context.Context, id string, status types.BillingStatus) error {
	defer r.observe("update_billing", time.Now())

	query := `UPDATE patients SET billing_status = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return types.NewInternalError(types.ErrCodeStoreFailure, "failed to update billing status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return types.NewInternalError(types.ErrCodeStoreFailure, "failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError(types.ErrCodePatientNotFound,
			fmt.Sprintf("patient not found: %s", id))
	}

	r.logger.WithFields(map[string]interface{}{
		"patient_id":     id,
		"billing_status": status,
	}).Info("Updated patient billing status")

	return nil
}
