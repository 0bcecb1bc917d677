package httpclient

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// BasicAuthTransport implements http.RoundTripper and adds Basic Auth
// authentication to outgoing requests. Credentials and bodies are never logged.
type BasicAuthTransport struct {
	Username  string
	Password  string
	UserAgent string
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// NewBasicAuthTransport creates a new BasicAuthTransport with the given
// credentials and optional underlying transport. If transport is nil,
// http.DefaultTransport will be used.
func NewBasicAuthTransport(username, password string, transport http.RoundTripper, logger *slog.Logger) *BasicAuthTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &BasicAuthTransport{
		Username:  username,
		Password:  password,
		UserAgent: "davmutate",
		Transport: transport,
		Logger:    logger,
	}
}

// RoundTrip implements the http.RoundTripper interface. It adds Basic Auth
// credentials to a clone of the request and delegates to the underlying transport.
func (t *BasicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Username == "" {
		return nil, errors.New("basic auth username cannot be empty")
	}
	if t.Password == "" {
		return nil, errors.New("basic auth password cannot be empty")
	}
	if t.Transport == nil {
		return nil, errors.New("transport cannot be nil")
	}

	out := req.Clone(req.Context())
	out.SetBasicAuth(t.Username, t.Password)
	if t.UserAgent != "" && out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", t.UserAgent)
	}

	t.Logger.Debug("outgoing request",
		"method", out.Method,
		"url", out.URL.String(),
		"if_match", out.Header.Get("If-Match"),
		"if_none_match", out.Header.Get("If-None-Match"))

	resp, err := t.Transport.RoundTrip(out)
	if err != nil {
		t.Logger.Debug("round trip failed", "method", out.Method, "error", err)
		return nil, err
	}
	t.Logger.Debug("incoming response",
		"method", out.Method,
		"status", resp.Status)
	return resp, nil
}
