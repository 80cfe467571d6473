package registry

import "net/http"

// BearerTransport adds the order book API key to every request.
type BearerTransport struct {
	Key  string
	Base http.RoundTripper
}

func (t BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Key == "" {
		return base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.Key)
	return base.RoundTrip(clone)
}
