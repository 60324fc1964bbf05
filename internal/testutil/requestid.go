package testutil

// FixedRequestIDGenerator returns the same request id every time, so
// every request of a scenario logs the same correlation id.
//
// Thread-safety: FixedRequestIDGenerator is stateless and safe for
// concurrent use.
type FixedRequestIDGenerator struct {
	id string
}

// NewFixedRequestIDGenerator creates a generator returning id. An empty id
// becomes "test-request".
func NewFixedRequestIDGenerator(id string) *FixedRequestIDGenerator {
	if id == "" {
		id = "test-request"
	}
	return &FixedRequestIDGenerator{id: id}
}

// Generate implements engine.RequestIDGenerator.
func (g *FixedRequestIDGenerator) Generate() string {
	return g.id
}
