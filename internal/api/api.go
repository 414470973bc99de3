package api

import (
	"errors"
	"net/http"

	"oracle-broker/internal/broker"
	"oracle-broker/pkg/api"

	"github.com/go-chi/chi/v5"
)

// CallerIdentityHeader carries the authenticated principal for callback and
// admin endpoints. The deployment's authenticating proxy is expected to set it.
const CallerIdentityHeader = "X-Caller-Identity"

type BrokerService struct {
	broker *broker.Broker
}

func NewBrokerService(b *broker.Broker) *BrokerService {
	return &BrokerService{broker: b}
}

func (s *BrokerService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/requests", func(r chi.Router) {
		r.Post("/", RestHandler(s.SubmitRequest))
		r.Get("/{request_id}", RestHandler(s.GetRequest))
	})
	r.Post("/oracle/callback", RestHandler(s.OracleCallback))
	r.Get("/results", RestHandler(s.GetResult))
	r.Get("/fee", RestHandler(s.EstimateFee))
	r.Put("/admin/gas-budgets/{model_id}", RestHandler(s.SetGasBudget))
}

// codedBrokerError maps the broker error taxonomy onto HTTP status codes.
func codedBrokerError(err error) error {
	switch {
	case errors.Is(err, broker.ErrConfigurationMissing):
		return CodedError(http.StatusUnprocessableEntity, err)
	case errors.Is(err, broker.ErrUpstreamUnavailable):
		return CodedError(http.StatusBadGateway, err)
	case errors.Is(err, broker.ErrUnauthorized):
		return CodedError(http.StatusForbidden, err)
	case errors.Is(err, broker.ErrUnknownRequest):
		return CodedError(http.StatusNotFound, err)
	default:
		return CodedError(http.StatusInternalServerError, err)
	}
}

func (s *BrokerService) SubmitRequest(r *http.Request) (any, error) {
	req, err := ParseRequest[api.SubmitRequest](r)
	if err != nil {
		return nil, err
	}

	if req.Prompt == "" || req.Submitter == "" {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "missing required fields: prompt, submitter")
	}

	requestId, err := s.broker.Submit(r.Context(), broker.SubmitParams{
		Prompt:       req.Prompt,
		Sender:       req.Submitter,
		Payment:      req.Payment,
		CallbackData: req.CallbackData,
	})
	if err != nil {
		return nil, codedBrokerError(err)
	}

	return api.SubmitResponse{RequestId: requestId}, nil
}

func (s *BrokerService) GetRequest(r *http.Request) (any, error) {
	requestId, err := URLParamUint64(r, "request_id")
	if err != nil {
		return nil, err
	}

	record, err := s.broker.GetRequest(r.Context(), requestId)
	if err != nil {
		return nil, codedBrokerError(err)
	}

	return toApiRequest(record), nil
}

func (s *BrokerService) OracleCallback(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CallbackRequest](r)
	if err != nil {
		return nil, err
	}

	caller := r.Header.Get(CallerIdentityHeader)

	if err := s.broker.Resolve(r.Context(), req.RequestId, req.Output, req.CallbackData, caller); err != nil {
		return nil, codedBrokerError(err)
	}

	return nil, nil
}

func (s *BrokerService) GetResult(r *http.Request) (any, error) {
	query, err := ParseRequestQueryParams[api.ResultQuery](r)
	if err != nil {
		return nil, err
	}

	output, err := s.broker.GetResult(r.Context(), query.ModelId, query.Prompt)
	if err != nil {
		return nil, codedBrokerError(err)
	}

	return api.ResultResponse{ModelId: query.ModelId, Output: output}, nil
}

func (s *BrokerService) EstimateFee(r *http.Request) (any, error) {
	query, err := ParseRequestQueryParams[api.FeeQuery](r)
	if err != nil {
		return nil, err
	}

	fee, err := s.broker.EstimateFee(r.Context(), query.ModelId, query.GasLimit)
	if err != nil {
		return nil, codedBrokerError(err)
	}

	return api.FeeResponse{Fee: fee}, nil
}

func (s *BrokerService) SetGasBudget(r *http.Request) (any, error) {
	modelId, err := URLParamUint64(r, "model_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.GasBudgetRequest](r)
	if err != nil {
		return nil, err
	}

	caller := r.Header.Get(CallerIdentityHeader)

	if err := s.broker.SetGasBudget(r.Context(), caller, modelId, req.GasLimit); err != nil {
		return nil, codedBrokerError(err)
	}

	return api.GasBudgetResponse{ModelId: modelId, GasLimit: req.GasLimit}, nil
}
