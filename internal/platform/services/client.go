// Package services holds the HTTP clients for the external collaborators:
// document extraction, episode creation, AI field mapping, PDF rendering,
// e-signature, and manufacturer submission dispatch. All clients share the
// same shape: a base URL, a timeout-bound http.Client, and fault
// classification of non-2xx responses.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/woundcare/intake/internal/platform/faults"
)

// Option configures a service client.
type Option func(*client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *client) { cl.http = c }
}

// WithToken sets a static bearer token sent on every request.
func WithToken(token string) Option {
	return func(cl *client) { cl.token = token }
}

// WithLogger attaches a logger for request-level diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(cl *client) { cl.log = log }
}

type client struct {
	baseURL string
	http    *http.Client
	token   string
	log     zerolog.Logger
}

func newClient(baseURL string, opts ...Option) client {
	cl := client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(&cl)
	}
	return cl
}

// postJSON marshals body, POSTs it to path, and decodes a 2xx response into
// out. Non-2xx responses are classified through the fault taxonomy.
func (cl *client) postJSON(ctx context.Context, op, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return faults.Wrap(faults.KindService, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cl.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return faults.Wrap(faults.KindService, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return cl.do(op, req, out)
}

func (cl *client) do(op string, req *http.Request, out interface{}) error {
	if cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}

	start := time.Now()
	resp, err := cl.http.Do(req)
	if err != nil {
		return faults.Wrap(faults.KindService, op, err)
	}
	defer resp.Body.Close()

	cl.log.Debug().
		Str("op", op).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("service call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Include a bounded slice of the body in the message.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		f := faults.FromStatus(op, resp.StatusCode)
		if len(snippet) > 0 {
			f.Msg = fmt.Sprintf("%s: %s", f.Msg, strings.TrimSpace(string(snippet)))
		}
		return f
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return faults.Wrap(faults.KindService, op, err)
	}
	return nil
}
