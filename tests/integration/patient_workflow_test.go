//go:build integration
// +build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/patient-platform/pkg/types"
)

// doRequest sends a request through the gateway with an optional bearer token
func doRequest(t *testing.T, method, path, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, gatewayServer.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, responseBody
}

// login obtains a token through the gateway's public login route
func login(t *testing.T) string {
	t.Helper()

	resp, body := doRequest(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    seedEmail,
		"password": seedPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "login failed: %s", body)

	var tokenResponse types.TokenResponse
	require.NoError(t, json.Unmarshal(body, &tokenResponse))
	require.NotEmpty(t, tokenResponse.Token)

	return tokenResponse.Token
}

func createInput(email string) map[string]string {
	return map[string]string{
		"name":             "Jane Doe",
		"email":            email,
		"address":          "12 Elm Street",
		"dateOfBirth":      "1990-04-15",
		"registrationDate": "2024-01-10",
	}
}

// TestPatientWorkflow walks the full patient lifecycle through the gateway
func TestPatientWorkflow(t *testing.T) {
	token := login(t)
	var patientID string

	t.Run("CreatePatient", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodPost, "/api/patients", token, createInput("workflow@example.com"))
		require.Equal(t, http.StatusCreated, resp.StatusCode, "create failed: %s", body)

		var result types.CreationResult
		require.NoError(t, json.Unmarshal(body, &result))

		assert.NotEmpty(t, result.Patient.ID)
		assert.Equal(t, "workflow@example.com", result.Patient.Email)
		assert.True(t, result.Billing.Provisioned)
		assert.False(t, result.Billing.Degraded)
		assert.Equal(t, types.BillingStatusProvisioned, result.Patient.BillingStatus)

		patientID = result.Patient.ID

		events := eventRecorder.eventsFor(patientID)
		require.Len(t, events, 1)
		assert.Equal(t, types.EventTypePatientCreated, events[0].EventType)
		assert.NotEmpty(t, events[0].EventID)
	})

	t.Run("DuplicateEmailConflicts", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodPost, "/api/patients", token, createInput("workflow@example.com"))
		assert.Equal(t, http.StatusConflict, resp.StatusCode, "expected conflict: %s", body)

		// The losing creation must leave no trace downstream
		assert.Len(t, eventRecorder.eventsFor(patientID), 1)
	})

	t.Run("ListPatients", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodGet, "/api/patients", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var response struct {
			Patients []*types.Patient `json:"patients"`
			Count    int              `json:"count"`
		}
		require.NoError(t, json.Unmarshal(body, &response))
		assert.GreaterOrEqual(t, response.Count, 1)

		found := false
		for _, p := range response.Patients {
			if p.ID == patientID {
				found = true
			}
		}
		assert.True(t, found, "created patient missing from list")
	})

	t.Run("GetPatient", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodGet, "/api/patients/"+patientID, token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var patient types.Patient
		require.NoError(t, json.Unmarshal(body, &patient))
		assert.Equal(t, patientID, patient.ID)
		assert.Equal(t, "Jane Doe", patient.Name)
	})

	t.Run("UpdatePatient", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodPut, "/api/patients/"+patientID, token, map[string]string{
			"name":        "Jane Smith",
			"email":       "workflow@example.com",
			"address":     "34 Oak Avenue",
			"dateOfBirth": "1990-04-15",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, "update failed: %s", body)

		var patient types.Patient
		require.NoError(t, json.Unmarshal(body, &patient))
		assert.Equal(t, patientID, patient.ID, "identifier must survive updates")
		assert.Equal(t, "Jane Smith", patient.Name)
		assert.Equal(t, "2024-01-10", patient.RegistrationDate.Format("2006-01-02"),
			"registration date must not change on update")
	})

	t.Run("DeletePatient", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodDelete, "/api/patients/"+patientID, token, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, _ = doRequest(t, http.MethodGet, "/api/patients/"+patientID, token, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

// TestGatewayAdmission verifies that the bearer gate fronts every protected
// route and that login is the only public entry point.
func TestGatewayAdmission(t *testing.T) {
	t.Run("MissingTokenRejected", func(t *testing.T) {
		billingBefore := billingStub.requestCount()
		eventsBefore := eventRecorder.count()

		resp, body := doRequest(t, http.MethodPost, "/api/patients", "", createInput("admission@example.com"))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "body: %s", body)

		// The gateway must reject before anything reaches the services
		assert.Equal(t, billingBefore, billingStub.requestCount())
		assert.Equal(t, eventsBefore, eventRecorder.count())
	})

	t.Run("GarbageTokenRejected", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodGet, "/api/patients", "not-a-real-token", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("ValidateRequiresToken", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodGet, "/auth/validate", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("ValidateAcceptsToken", func(t *testing.T) {
		token := login(t)
		resp, body := doRequest(t, http.MethodGet, "/auth/validate", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &response))
		assert.Equal(t, true, response["valid"])
	})

	t.Run("BadCredentialsRejected", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPost, "/auth/login", "", map[string]string{
			"email":    seedEmail,
			"password": "wrong-password",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

// TestDegradedBillingCreation exercises the degraded path: the billing
// subsystem is down, the creation still succeeds, and a later retry
// provisions the account.
func TestDegradedBillingCreation(t *testing.T) {
	token := login(t)

	billingStub.respondWith(http.StatusServiceUnavailable)
	defer billingStub.respondWith(http.StatusCreated)

	var patientID string

	t.Run("CreateSucceedsDegraded", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodPost, "/api/patients", token, createInput("degraded@example.com"))
		require.Equal(t, http.StatusCreated, resp.StatusCode, "create failed: %s", body)

		var result types.CreationResult
		require.NoError(t, json.Unmarshal(body, &result))

		assert.False(t, result.Billing.Provisioned)
		assert.True(t, result.Billing.Degraded)
		assert.NotEmpty(t, result.Billing.Reason)
		assert.Equal(t, types.BillingStatusPending, result.Patient.BillingStatus)

		patientID = result.Patient.ID

		// Creation succeeded, so the event still goes out
		assert.Len(t, eventRecorder.eventsFor(patientID), 1)
	})

	t.Run("RetryProvisionsAccount", func(t *testing.T) {
		billingStub.respondWith(http.StatusCreated)

		resp, body := doRequest(t, http.MethodPost, "/api/patients/"+patientID+"/billing", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, "retry failed: %s", body)

		var patient types.Patient
		require.NoError(t, json.Unmarshal(body, &patient))
		assert.Equal(t, types.BillingStatusProvisioned, patient.BillingStatus)
	})
}

// TestValidationThroughGateway checks that malformed creation payloads are
// rejected with field-level validation errors.
func TestValidationThroughGateway(t *testing.T) {
	token := login(t)

	cases := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{"missing registration date", func(input map[string]string) { delete(input, "registrationDate") }},
		{"invalid email", func(input map[string]string) { input["email"] = "not-an-email" }},
		{"malformed date of birth", func(input map[string]string) { input["dateOfBirth"] = "April 15, 1990" }},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := createInput(fmt.Sprintf("validation-%d@example.com", i))
			tc.mutate(input)

			resp, body := doRequest(t, http.MethodPost, "/api/patients", token, input)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body: %s", body)
		})
	}
}
