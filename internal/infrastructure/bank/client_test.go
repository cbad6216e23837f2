package bank_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/config"
	"github.com/clearroute/payment-core/internal/domain"
	"github.com/clearroute/payment-core/internal/infrastructure/bank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(baseURL string) application.BankClient {
	return bank.NewBankClient(config.BankConfig{
		BaseURL:     baseURL,
		ConnTimeout: 1 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
}

func defaultRequest() application.BankDecisionRequest {
	return application.BankDecisionRequest{
		CardNumber:  "4242424242424242",
		ExpMonth:    12,
		ExpYear:     2027,
		AmountCents: 9900,
		Currency:    "usd",
		MerchantID:  "mer_test",
	}
}

func TestDecideApproved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/decisions", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "4242424242424242", body["card_number"])
		assert.Equal(t, float64(9900), body["amount"])

		json.NewEncoder(w).Encode(map[string]any{
			"approved":  true,
			"auth_code": "AUTH42",
		})
	}))
	defer server.Close()

	decision, err := newClient(server.URL).Decide(context.Background(), defaultRequest())
	require.NoError(t, err)
	assert.True(t, decision.Approved)
	assert.Equal(t, "AUTH42", decision.AuthCode)
}

func TestDecideDeclined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"approved":        false,
			"decline_code":    "insufficient_funds",
			"decline_message": "Your card has insufficient funds.",
		})
	}))
	defer server.Close()

	decision, err := newClient(server.URL).Decide(context.Background(), defaultRequest())
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, "insufficient_funds", decision.DeclineCode)
}

func TestDecideServerErrorIsBankUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream issuer timeout", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newClient(server.URL).Decide(context.Background(), defaultRequest())
	require.Error(t, err)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeBankUnavailable))
}

func TestDecideConnectionErrorIsBankUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := newClient(server.URL).Decide(context.Background(), defaultRequest())
	require.Error(t, err)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeBankUnavailable))
}

func TestDecideClientErrorCarriesBankCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":   "invalid_request",
			"message": "merchant_id is required",
		})
	}))
	defer server.Close()

	_, err := newClient(server.URL).Decide(context.Background(), defaultRequest())
	require.Error(t, err)

	bankErr, ok := bank.IsBankError(err)
	require.True(t, ok)
	assert.Equal(t, "invalid_request", bankErr.Code)
	assert.Equal(t, http.StatusBadRequest, bankErr.StatusCode)
	assert.False(t, bankErr.IsRetryable())
}
