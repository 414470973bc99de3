package api

import "time"

type SubmitRequest struct {
	Prompt       string `json:"prompt"`
	Submitter    string `json:"submitter"`
	Payment      uint64 `json:"payment"`
	CallbackData []byte `json:"callback_data,omitempty"`
}

type SubmitResponse struct {
	RequestId uint64 `json:"request_id"`
}

// CallbackRequest is the inbound payload the oracle delivers for a previously
// registered request. The caller identity travels in the X-Caller-Identity
// header, not the body.
type CallbackRequest struct {
	RequestId    uint64 `json:"request_id"`
	Output       []byte `json:"output"`
	CallbackData []byte `json:"callback_data,omitempty"`
}

type Request struct {
	Id             uint64     `json:"id"`
	Sender         string     `json:"sender"`
	ModelId        uint64     `json:"model_id"`
	Input          []byte     `json:"input"`
	Output         []byte     `json:"output,omitempty"`
	GasLimit       uint64     `json:"gas_limit"`
	Status         string     `json:"status"`
	CreationTime   time.Time  `json:"creation_time"`
	ResolutionTime *time.Time `json:"resolution_time,omitempty"`
}

type ResultQuery struct {
	ModelId uint64 `schema:"model_id,required"`
	Prompt  string `schema:"prompt,required"`
}

type ResultResponse struct {
	ModelId uint64 `json:"model_id"`
	Output  []byte `json:"output"`
}

type FeeQuery struct {
	ModelId  uint64 `schema:"model_id,required"`
	GasLimit uint64 `schema:"gas_limit,required"`
}

type FeeResponse struct {
	Fee uint64 `json:"fee"`
}

type GasBudgetRequest struct {
	GasLimit uint64 `json:"gas_limit"`
}

type GasBudgetResponse struct {
	ModelId  uint64 `json:"model_id"`
	GasLimit uint64 `json:"gas_limit"`
}
