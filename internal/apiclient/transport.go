package apiclient

import "net/http"

// bearerTransport attaches the session token to every outgoing request.
type bearerTransport struct {
	base    http.RoundTripper
	session Session
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	token := t.session.Token()
	if token == "" {
		return base.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request.
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)
	return base.RoundTrip(r)
}
