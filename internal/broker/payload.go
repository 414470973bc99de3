package broker

// PayloadBuilder turns a human-readable prompt into the byte payload sent to
// the oracle. Context construction (templates, history) belongs to the
// deployment, not the broker; the broker only handles the final bytes.
type PayloadBuilder interface {
	Build(prompt string) []byte
}

// RawPayloadBuilder forwards the prompt verbatim.
type RawPayloadBuilder struct{}

func (RawPayloadBuilder) Build(prompt string) []byte {
	return []byte(prompt)
}
