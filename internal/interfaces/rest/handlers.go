package rest

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator"

	"github.com/clearroute/payment-core/internal/application/services"
	"github.com/clearroute/payment-core/internal/domain"
)

// maxBodyBytes bounds request bodies; card payloads are tiny.
const maxBodyBytes = 64 << 10

type Handlers struct {
	tokens    *services.TokenService
	charges   *services.ChargeService
	endpoints *services.EndpointService
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewHandlers(
	tokens *services.TokenService,
	charges *services.ChargeService,
	endpoints *services.EndpointService,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		tokens:    tokens,
		charges:   charges,
		endpoints: endpoints,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Routes registers every operation on the mux.
func (h *Handlers) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /tokens", h.Tokenize)
	mux.HandleFunc("GET /tokens/{id}", h.GetToken)
	mux.HandleFunc("DELETE /tokens/{id}", h.RevokeToken)
	mux.HandleFunc("POST /charges", h.Authorize)
	mux.HandleFunc("GET /charges/{id}", h.GetCharge)
	mux.HandleFunc("POST /charges/{id}/capture", h.Capture)
	mux.HandleFunc("POST /charges/{id}/void", h.Void)
	mux.HandleFunc("GET /charges/{id}/refunds", h.ListRefunds)
	mux.HandleFunc("POST /refunds", h.Refund)
	mux.HandleFunc("POST /webhook_endpoints", h.RegisterEndpoint)
	mux.HandleFunc("GET /webhook_endpoints/{id}", h.GetEndpoint)
	mux.HandleFunc("GET /health", h.Health)
}

type TokenizeRequest struct {
	CardNumber     string `json:"card_number" validate:"required"`
	ExpMonth       int    `json:"exp_month" validate:"required"`
	ExpYear        int    `json:"exp_year" validate:"required"`
	CVV            string `json:"cvv"`
	CardholderName string `json:"cardholder_name"`
	Reusable       bool   `json:"reusable"`
}

func (h *Handlers) Tokenize(w http.ResponseWriter, r *http.Request) {
	var req TokenizeRequest
	if err := h.decode(r, &req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	token, err := h.tokens.Tokenize(r.Context(), services.TokenizeCommand{
		Number:         req.CardNumber,
		ExpMonth:       req.ExpMonth,
		ExpYear:        req.ExpYear,
		CVV:            req.CVV,
		CardholderName: req.CardholderName,
		Reusable:       req.Reusable,
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, services.NewTokenResponse(token))
}

func (h *Handlers) GetToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.tokens.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, services.NewTokenResponse(token))
}

func (h *Handlers) RevokeToken(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.Revoke(r.Context(), r.PathValue("id")); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type AuthorizeRequest struct {
	TokenID    string `json:"token_id" validate:"required"`
	Amount     int64  `json:"amount" validate:"required"`
	Currency   string `json:"currency" validate:"required,len=3"`
	MerchantID string `json:"merchant_id" validate:"required"`
}

func (h *Handlers) Authorize(w http.ResponseWriter, r *http.Request) {
	key, err := idempotencyKey(r)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	var req AuthorizeRequest
	if err := h.decode(r, &req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	charge, err := h.charges.Authorize(r.Context(), key, services.AuthorizeCommand{
		TokenID:    req.TokenID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		MerchantID: req.MerchantID,
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, charge)
}

func (h *Handlers) GetCharge(w http.ResponseWriter, r *http.Request) {
	charge, err := h.charges.GetCharge(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, charge)
}

type CaptureRequest struct {
	Amount int64 `json:"amount" validate:"gte=0"`
}

func (h *Handlers) Capture(w http.ResponseWriter, r *http.Request) {
	key, err := idempotencyKey(r)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	// amount is optional; an empty body means full capture
	var req CaptureRequest
	if err := h.decodeOptional(r, &req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	charge, err := h.charges.Capture(r.Context(), key, services.CaptureCommand{
		AuthorizationID: r.PathValue("id"),
		Amount:          req.Amount,
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, charge)
}

func (h *Handlers) Void(w http.ResponseWriter, r *http.Request) {
	key, err := idempotencyKey(r)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	charge, err := h.charges.Void(r.Context(), key, services.VoidCommand{
		AuthorizationID: r.PathValue("id"),
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, charge)
}

type RefundRequest struct {
	AuthorizationID string `json:"authorization_id" validate:"required"`
	Amount          int64  `json:"amount" validate:"gte=0"`
}

func (h *Handlers) Refund(w http.ResponseWriter, r *http.Request) {
	key, err := idempotencyKey(r)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	var req RefundRequest
	if err := h.decode(r, &req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	refund, err := h.charges.Refund(r.Context(), key, services.RefundCommand{
		AuthorizationID: req.AuthorizationID,
		Amount:          req.Amount,
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, refund)
}

func (h *Handlers) ListRefunds(w http.ResponseWriter, r *http.Request) {
	refunds, err := h.charges.ListRefunds(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, refunds)
}

type RegisterEndpointRequest struct {
	MerchantID string   `json:"merchant_id" validate:"required"`
	URL        string   `json:"url" validate:"required,url"`
	Events     []string `json:"events"`
}

func (h *Handlers) RegisterEndpoint(w http.ResponseWriter, r *http.Request) {
	var req RegisterEndpointRequest
	if err := h.decode(r, &req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	endpoint, err := h.endpoints.Register(r.Context(), services.RegisterEndpointCommand{
		MerchantID: req.MerchantID,
		URL:        req.URL,
		Events:     req.Events,
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, endpoint)
}

func (h *Handlers) GetEndpoint(w http.ResponseWriter, r *http.Request) {
	endpoint, err := h.endpoints.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, endpoint)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode parses and validates a JSON request body.
func (h *Handlers) decode(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("request body is required")
		}
		return domain.NewValidationError("request body is not valid JSON")
	}
	if err := h.validate.Struct(dst); err != nil {
		return domain.NewValidationError(err.Error())
	}
	return nil
}

// decodeOptional is decode for endpoints where an empty body is legal.
func (h *Handlers) decodeOptional(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.NewValidationError("request body is not valid JSON")
	}
	if err := h.validate.Struct(dst); err != nil {
		return domain.NewValidationError(err.Error())
	}
	return nil
}

func idempotencyKey(r *http.Request) (string, error) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		return "", domain.NewValidationError("Idempotency-Key header is required")
	}
	return key, nil
}
