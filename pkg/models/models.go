package models

// SubmissionEvent is published when the oracle accepts a request. The prompt
// is carried in human-readable form for off-band tracking.
type SubmissionEvent struct {
	RequestId uint64 `json:"request_id"`
	Sender    string `json:"sender"`
	ModelId   uint64 `json:"model_id"`
	Prompt    string `json:"prompt"`
}

// ResolutionEvent is published when a validated callback resolves a request.
// CallbackData is echoed back exactly as supplied at submission time.
type ResolutionEvent struct {
	RequestId    uint64 `json:"request_id"`
	ModelId      uint64 `json:"model_id"`
	Input        []byte `json:"input"`
	Output       []byte `json:"output"`
	CallbackData []byte `json:"callback_data"`
}
