package hellotrace

// Sampler decides whether a new trace is recorded. It is consulted once
// per root span; children inherit the decision.
type Sampler interface {
	ShouldSample(traceID TraceID, operation Key) bool
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(traceID TraceID, operation Key) bool

// ShouldSample calls f.
func (f SamplerFunc) ShouldSample(traceID TraceID, operation Key) bool {
	return f(traceID, operation)
}

// ConstSampler makes the same decision for every trace.
type ConstSampler struct {
	Decision bool
}

// NewConstSampler creates a ConstSampler.
func NewConstSampler(sample bool) ConstSampler {
	return ConstSampler{Decision: sample}
}

// ShouldSample returns the constant decision.
func (s ConstSampler) ShouldSample(TraceID, Key) bool {
	return s.Decision
}

// samplerTags describes a sampler on root spans, the way Jaeger clients
// tag sampler.type and sampler.param.
func samplerTags(s Sampler) (string, interface{}) {
	switch v := s.(type) {
	case ConstSampler:
		return "const", v.Decision
	case *ConstSampler:
		return "const", v.Decision
	default:
		return "custom", true
	}
}
