package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/domain"
)

const webhookSecretPrefix = "whsec_"

type RegisterEndpointCommand struct {
	MerchantID string   `json:"merchant_id"`
	URL        string   `json:"url"`
	Events     []string `json:"events"`
}

// EndpointResponse is the caller-facing projection of a webhook
// endpoint. The signing secret is returned exactly once, at creation.
type EndpointResponse struct {
	ID         string   `json:"id"`
	Object     string   `json:"object"`
	MerchantID string   `json:"merchant_id"`
	URL        string   `json:"url"`
	Events     []string `json:"events"`
	Enabled    bool     `json:"enabled"`
	Secret     string   `json:"secret,omitempty"`
}

// EndpointService manages merchant webhook endpoint registrations.
type EndpointService struct {
	webhooks application.WebhookRepository
	logger   *slog.Logger
	now      clock
}

func NewEndpointService(webhooks application.WebhookRepository, logger *slog.Logger) *EndpointService {
	return &EndpointService{webhooks: webhooks, logger: logger, now: systemClock}
}

// Register creates an enabled endpoint with a fresh signing secret.
func (s *EndpointService) Register(ctx context.Context, cmd RegisterEndpointCommand) (*EndpointResponse, error) {
	if cmd.URL == "" {
		return nil, domain.NewValidationError("endpoint url is required")
	}
	events := cmd.Events
	if len(events) == 0 {
		events = []string{"*"}
	}

	endpoint := &domain.WebhookEndpoint{
		ID:         domain.NewID(domain.EndpointIDPrefix, domain.OpaqueIDLength),
		MerchantID: cmd.MerchantID,
		URL:        cmd.URL,
		Secret:     domain.NewID(webhookSecretPrefix, 32),
		Events:     events,
		Enabled:    true,
		CreatedAt:  s.now(),
	}
	if err := s.webhooks.CreateEndpoint(ctx, endpoint); err != nil {
		return nil, domain.NewInternalError(err)
	}

	s.logger.Info("webhook endpoint registered",
		"endpoint_id", endpoint.ID, "merchant_id", endpoint.MerchantID, "url", endpoint.URL)
	resp := newEndpointResponse(endpoint)
	resp.Secret = endpoint.Secret
	return resp, nil
}

// Get returns an endpoint without its secret.
func (s *EndpointService) Get(ctx context.Context, id string) (*EndpointResponse, error) {
	endpoint, err := s.webhooks.FindEndpoint(ctx, id)
	if err != nil {
		if errors.Is(err, application.ErrRecordNotFound) {
			return nil, domain.NewValidationError("webhook endpoint not found")
		}
		return nil, domain.NewInternalError(err)
	}
	return newEndpointResponse(endpoint), nil
}

func newEndpointResponse(endpoint *domain.WebhookEndpoint) *EndpointResponse {
	return &EndpointResponse{
		ID:         endpoint.ID,
		Object:     "webhook_endpoint",
		MerchantID: endpoint.MerchantID,
		URL:        endpoint.URL,
		Events:     endpoint.Events,
		Enabled:    endpoint.Enabled,
	}
}
