package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"
)

// Payment intent statuses reported by the gateway.
type IntentStatus string

const (
	IntentRequiresAction IntentStatus = "requires_action"
	IntentProcessing     IntentStatus = "processing"
	IntentSucceeded      IntentStatus = "succeeded"
	IntentFailed         IntentStatus = "failed"
)

// Payment method types the engine distinguishes. Cards settle synchronously;
// bank debits settle days later through webhook events.
const (
	PaymentMethodCard = "card"
	PaymentMethodBank = "us_bank_account"
)

type PaymentMethod struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type PaymentIntentParams struct {
	Amount               int64
	Currency             string
	CustomerID           string
	PaymentMethodID      string
	ApplicationFeeAmount int64
	TransferDestination  string
	ReceiptEmail         string
	Metadata             map[string]string
}

type PaymentIntent struct {
	ID                string       `json:"id"`
	Status            IntentStatus `json:"status"`
	Amount            int64        `json:"amount"`
	Currency          string       `json:"currency"`
	PaymentMethodType string       `json:"payment_method_type"`
	FailureCode       string       `json:"failure_code"`
	FailureMessage    string       `json:"failure_message"`
}

// GatewayError is a non-2xx gateway response. Transient errors (outages,
// rate limits, network failures) may be retried with the same idempotency
// key; declines are genuine attempt failures.
type GatewayError struct {
	StatusCode int
	Code       string
	Message    string
	Transient  bool
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// IsTransientGatewayError reports whether err is worth retrying without
// counting the attempt against the payment.
func IsTransientGatewayError(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Transient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// PaymentGateway is the engine's view of the payment processor.
type PaymentGateway interface {
	RetrievePaymentMethod(ctx context.Context, id string) (*PaymentMethod, error)
	CreatePaymentIntent(ctx context.Context, params PaymentIntentParams, idempotencyKey string) (*PaymentIntent, error)
}

// HTTPGateway talks to the processor's REST API.
type HTTPGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewHTTPGateway() *HTTPGateway {
	return &HTTPGateway{
		baseURL:   os.Getenv("GATEWAY_API_URL"),
		secretKey: os.Getenv("GATEWAY_SECRET_KEY"),
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *HTTPGateway) RetrievePaymentMethod(ctx context.Context, id string) (*PaymentMethod, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/payment_methods/"+id, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)

	var method PaymentMethod
	if err := g.do(req, &method); err != nil {
		return nil, err
	}
	return &method, nil
}

func (g *HTTPGateway) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams, idempotencyKey string) (*PaymentIntent, error) {
	body := map[string]interface{}{
		"amount":         params.Amount,
		"currency":       params.Currency,
		"customer":       params.CustomerID,
		"payment_method": params.PaymentMethodID,
		"confirm":        true,
		"capture_method": "automatic",
	}
	if params.ApplicationFeeAmount > 0 {
		body["application_fee_amount"] = params.ApplicationFeeAmount
	}
	if params.TransferDestination != "" {
		body["transfer_data"] = map[string]string{"destination": params.TransferDestination}
	}
	if params.ReceiptEmail != "" {
		body["receipt_email"] = params.ReceiptEmail
	}
	if len(params.Metadata) > 0 {
		body["metadata"] = params.Metadata
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/payment_intents", bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	var intent PaymentIntent
	if err := g.do(req, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (g *HTTPGateway) do(req *http.Request, out interface{}) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		json.Unmarshal(payload, &envelope)

		return &GatewayError{
			StatusCode: resp.StatusCode,
			Code:       envelope.Error.Code,
			Message:    envelope.Error.Message,
			Transient:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	return json.Unmarshal(payload, out)
}
