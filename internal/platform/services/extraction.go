package services

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"

	"github.com/woundcare/intake/internal/domain/extraction"
	"github.com/woundcare/intake/internal/domain/intake"
	"github.com/woundcare/intake/internal/platform/faults"
)

// ExtractionClient calls the document-analysis service. Documents are sent
// as a multipart form so card front and back travel in one request.
type ExtractionClient struct {
	client
}

func NewExtractionClient(baseURL string, opts ...Option) *ExtractionClient {
	return &ExtractionClient{client: newClient(baseURL, opts...)}
}

var _ extraction.Client = (*ExtractionClient)(nil)

func (c *ExtractionClient) Extract(ctx context.Context, req extraction.Request) (*extraction.Result, error) {
	const op = "services.extraction"

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("document_kind", string(req.Kind)); err != nil {
		return nil, faults.Wrap(faults.KindService, op, err)
	}
	for _, part := range []struct {
		field string
		file  *intake.Attachment
	}{
		{"front", req.Front},
		{"back", req.Back},
		{"document", req.Note},
	} {
		if part.file == nil {
			continue
		}
		fw, err := w.CreateFormFile(part.field, part.file.Filename)
		if err != nil {
			return nil, faults.Wrap(faults.KindService, op, err)
		}
		if _, err := fw.Write(part.file.Data); err != nil {
			return nil, faults.Wrap(faults.KindService, op, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, faults.Wrap(faults.KindService, op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/documents/analyze", &buf)
	if err != nil {
		return nil, faults.Wrap(faults.KindService, op, err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	var res extraction.Result
	if err := c.do(op, httpReq, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
