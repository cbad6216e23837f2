// Package bank is the HTTP adapter for the external bank decision
// service. The engine never retries a failed decision itself; transient
// failures surface as BANK_UNAVAILABLE and are resolved by idempotent
// replay with the same key.
package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/config"
	"github.com/clearroute/payment-core/internal/domain"
)

type HTTPBankClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewBankClient(cfg config.BankConfig) application.BankClient {
	return &HTTPBankClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.ReadTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnTimeout,
				}).DialContext,
			},
		},
	}
}

func (c *HTTPBankClient) Decide(ctx context.Context, req application.BankDecisionRequest) (*application.BankDecision, error) {
	body := decisionRequest{
		CardNumber:  req.CardNumber,
		ExpiryMonth: req.ExpMonth,
		ExpiryYear:  req.ExpYear,
		Amount:      req.AmountCents,
		Currency:    req.Currency,
		MerchantID:  req.MerchantID,
	}

	jsonData, err := json.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("error marshalling json: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/decisions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// unique per attempt so the bank can dedupe its own retries
	httpReq.Header.Set("X-Request-Id", uuid.New().String())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// connection refused, DNS failure, timeout: the decision state
		// is unknown, so callers must replay, never assume failed
		return nil, domain.NewBankUnavailableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return nil, domain.NewBankUnavailableError(&BankError{
				Code:       "internal_error",
				Message:    string(raw),
				StatusCode: resp.StatusCode,
			})
		}
		var bankErrResp errorResponse
		if err := json.Unmarshal(raw, &bankErrResp); err != nil {
			return nil, fmt.Errorf("bank returned status %d: %s", resp.StatusCode, string(raw))
		}
		return nil, &BankError{
			Code:       bankErrResp.Err,
			Message:    bankErrResp.Message,
			StatusCode: resp.StatusCode,
		}
	}

	var decision decisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return nil, fmt.Errorf("error decoding json response: %w", err)
	}

	return &application.BankDecision{
		Approved:       decision.Approved,
		AuthCode:       decision.AuthCode,
		DeclineCode:    decision.DeclineCode,
		DeclineMessage: decision.DeclineMessage,
	}, nil
}
