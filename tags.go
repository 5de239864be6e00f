package hellotrace

// Standard tag keys shared by the HTTP glue and the exporters.
const (
	SpanKindTagKey       = "span.kind"
	ComponentTagKey      = "component"
	ErrorTagKey          = "error"
	HTTPURLTagKey        = "http.url"
	HTTPMethodTagKey     = "http.method"
	HTTPStatusCodeTagKey = "http.status_code"
)

// Values of the span.kind tag.
const (
	SpanKindServer = "server"
	SpanKindClient = "client"
)
