package services

import (
	"context"

	"github.com/woundcare/intake/internal/domain/fulfillment"
)

// MappingClient is the HTTP client for the AI field-mapping service.
type MappingClient struct {
	client
}

func NewMappingClient(baseURL string, opts ...Option) *MappingClient {
	return &MappingClient{client: newClient(baseURL, opts...)}
}

var _ fulfillment.FieldMapper = (*MappingClient)(nil)

func (c *MappingClient) MapFields(ctx context.Context, req fulfillment.MapRequest) (*fulfillment.MapResult, error) {
	var res fulfillment.MapResult
	if err := c.postJSON(ctx, "services.mapping", "/v1/map-fields", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RenderClient is the HTTP client for the PDF rendering service.
type RenderClient struct {
	client
}

func NewRenderClient(baseURL string, opts ...Option) *RenderClient {
	return &RenderClient{client: newClient(baseURL, opts...)}
}

var _ fulfillment.PDFRenderer = (*RenderClient)(nil)

func (c *RenderClient) Render(ctx context.Context, req fulfillment.RenderRequest) (*fulfillment.RenderResult, error) {
	var res fulfillment.RenderResult
	if err := c.postJSON(ctx, "services.render", "/v1/documents/render", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ESignClient is the HTTP client for the hosted e-signature service.
type ESignClient struct {
	client
}

func NewESignClient(baseURL string, opts ...Option) *ESignClient {
	return &ESignClient{client: newClient(baseURL, opts...)}
}

var _ fulfillment.ESignProvider = (*ESignClient)(nil)

func (c *ESignClient) CreateSession(ctx context.Context, req fulfillment.ESignRequest) (*fulfillment.ESignSession, error) {
	var res fulfillment.ESignSession
	if err := c.postJSON(ctx, "services.esign", "/v1/signing-sessions", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DispatchClient is the HTTP client for manufacturer submission dispatch.
// Attachments are base64-encoded inside the JSON payload.
type DispatchClient struct {
	client
}

func NewDispatchClient(baseURL string, opts ...Option) *DispatchClient {
	return &DispatchClient{client: newClient(baseURL, opts...)}
}

var _ fulfillment.Dispatcher = (*DispatchClient)(nil)

type dispatchAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type dispatchPayload struct {
	fulfillment.DispatchRequest
	Attachments []dispatchAttachment `json:"attachments,omitempty"`
}

func (c *DispatchClient) Dispatch(ctx context.Context, req fulfillment.DispatchRequest) (*fulfillment.DispatchResult, error) {
	payload := dispatchPayload{DispatchRequest: req}
	for _, a := range req.Attachments {
		payload.Attachments = append(payload.Attachments, dispatchAttachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Data:        a.Data,
		})
	}

	var res fulfillment.DispatchResult
	if err := c.postJSON(ctx, "services.dispatch", "/v1/submissions", payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
