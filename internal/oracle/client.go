package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrUnavailable indicates the oracle could not be reached or answered with an
// error. Callers may retry; no broker state changes when it is returned.
var ErrUnavailable = errors.New("oracle unavailable")

// Registration carries everything the oracle needs to accept a request. The
// payment is forwarded as-is; fee enforcement is the oracle's job.
type Registration struct {
	ModelId        uint64 `json:"model_id"`
	Input          []byte `json:"input"`
	CallbackTarget string `json:"callback_target"`
	GasLimit       uint64 `json:"gas_limit"`
	CallbackData   []byte `json:"callback_data"`
	Payment        uint64 `json:"payment"`
}

type Client interface {
	// EstimateFee returns the current cost of a request for the model and gas
	// limit. Read-only, safe to call any number of times.
	EstimateFee(ctx context.Context, modelId, gasLimit uint64) (uint64, error)

	// Register submits a request to the oracle and returns the request id the
	// oracle assigned. A failure means no request was registered and no funds moved.
	Register(ctx context.Context, reg Registration) (uint64, error)
}

type HttpClient struct {
	client *resty.Client
}

func NewHttpClient(baseURL string) *HttpClient {
	return &HttpClient{
		client: resty.New().SetBaseURL(baseURL),
	}
}

type feeResponse struct {
	Fee uint64 `json:"fee"`
}

func (c *HttpClient) EstimateFee(ctx context.Context, modelId, gasLimit uint64) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("model_id", fmt.Sprintf("%d", modelId)).
		SetQueryParam("gas_limit", fmt.Sprintf("%d", gasLimit)).
		Get("/v1/fee")

	if err != nil {
		slog.Error("unable to query fee from oracle", "model_id", modelId, "error", err)
		return 0, fmt.Errorf("fee query failed: %w", ErrUnavailable)
	}

	if !res.IsSuccess() {
		slog.Error("oracle returned error for fee query", "status_code", res.StatusCode(), "body", res.String())
		return 0, fmt.Errorf("fee query returned status %d: %w", res.StatusCode(), ErrUnavailable)
	}

	var fee feeResponse
	if err := json.Unmarshal(res.Body(), &fee); err != nil {
		slog.Error("error parsing fee response from oracle", "error", err)
		return 0, fmt.Errorf("fee query returned malformed response: %w", ErrUnavailable)
	}

	return fee.Fee, nil
}

type registerResponse struct {
	RequestId uint64 `json:"request_id"`
}

func (c *HttpClient) Register(ctx context.Context, reg Registration) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reg).
		Post("/v1/requests")

	if err != nil {
		slog.Error("unable to register request with oracle", "model_id", reg.ModelId, "error", err)
		return 0, fmt.Errorf("registration failed: %w", ErrUnavailable)
	}

	if !res.IsSuccess() {
		slog.Error("oracle rejected registration", "status_code", res.StatusCode(), "body", res.String())
		return 0, fmt.Errorf("registration returned status %d: %w", res.StatusCode(), ErrUnavailable)
	}

	var reply registerResponse
	if err := json.Unmarshal(res.Body(), &reply); err != nil {
		slog.Error("error parsing registration response from oracle", "error", err)
		return 0, fmt.Errorf("registration returned malformed response: %w", ErrUnavailable)
	}

	return reply.RequestId, nil
}
