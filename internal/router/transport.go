package router

import (
	"net/http"

	"github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewTransport returns the pooled keep-alive transport shared by every
// upstream provider client. It is safe for concurrent use.
func NewTransport(maxIdleConnsPerHost int) http.RoundTripper {
	t := cleanhttp.DefaultPooledTransport()
	if maxIdleConnsPerHost > 0 {
		t.MaxIdleConnsPerHost = maxIdleConnsPerHost
	}
	return otelhttp.NewTransport(t)
}
