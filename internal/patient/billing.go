package patient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carelink/patient-platform/pkg/config"
	"github.com/carelink/patient-platform/pkg/logger"
	"github.com/carelink/patient-platform/pkg/types"
)

const maxBillingResponseBytes = 4096

// billingAccountRequest is the payload sent to the billing subsystem when
// provisioning an account for a new patient.
type billingAccountRequest struct {
	PatientID string `json:"patient_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

// HTTPBillingClient provisions billing accounts over HTTP. Every call is a
// single request bounded by the configured timeout; retry policy belongs to
// the caller, which needs the transient/rejected classification to decide.
type HTTPBillingClient struct {
	httpClient *http.Client
	endpoint   string
	logger     *logger.Logger
}

// NewBillingClient creates a billing client from configuration
func NewBillingClient(cfg config.BillingConfig, log *logger.Logger) *HTTPBillingClient {
	return &HTTPBillingClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		logger:   log,
	}
}

// CreateAccount asks the billing subsystem to provision an account for the
// patient. Transport failures and 5xx/408/429 responses come back as
// *types.TransientBillingError; any other non-2xx response means the
// subsystem refused the request and comes back as *types.RejectedBillingError.
func (c *HTTPBillingClient) CreateAccount(ctx context.Context, patient *types.Patient) error {
	payload, err := json.Marshal(billingAccountRequest{
		PatientID: patient.ID,
		Name:      patient.Name,
		Email:     patient.Email,
	})
	if err != nil {
		return fmt.Errorf("failed to encode billing request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/accounts", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build billing request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts, refused connections and DNS failures may all clear up
		return &types.TransientBillingError{Cause: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBillingResponseBytes))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case isRetryableStatus(resp.StatusCode):
		return &types.TransientBillingError{
			Cause: fmt.Errorf("billing subsystem returned status %d", resp.StatusCode),
		}
	default:
		return &types.RejectedBillingError{
			StatusCode: resp.StatusCode,
			Reason:     strings.TrimSpace(string(body)),
		}
	}
}

// isRetryableStatus reports whether a billing response status indicates a
// condition that may clear up on its own.
func isRetryableStatus(statusCode int) bool {
	return statusCode >= 500 ||
		statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusTooManyRequests
}
