package services

import (
	"context"
)

// EpisodeRequest identifies the provider, facility, and patient an intake
// episode is opened for.
type EpisodeRequest struct {
	ProviderNPI string `json:"provider_npi"`
	FacilityID  string `json:"facility_id"`
	PatientID   string `json:"patient_id,omitempty"`
	PatientName string `json:"patient_name,omitempty"`
	PatientDOB  string `json:"patient_dob,omitempty"`
}

// Episode is the upstream care-episode record the intake is filed under.
type Episode struct {
	EpisodeID          string            `json:"episode_id"`
	PatientReferenceID string            `json:"patient_reference_id"`
	// ExtractedData carries any demographics the upstream system already
	// knows, pre-seeded into the form state as extraction-owned values.
	ExtractedData map[string]string `json:"extracted_data,omitempty"`
}

// EpisodeCreator opens a care episode when a wizard session starts.
type EpisodeCreator interface {
	CreateEpisode(ctx context.Context, req EpisodeRequest) (*Episode, error)
}

// EpisodeClient is the HTTP EpisodeCreator.
type EpisodeClient struct {
	client
}

func NewEpisodeClient(baseURL string, opts ...Option) *EpisodeClient {
	return &EpisodeClient{client: newClient(baseURL, opts...)}
}

var _ EpisodeCreator = (*EpisodeClient)(nil)

func (c *EpisodeClient) CreateEpisode(ctx context.Context, req EpisodeRequest) (*Episode, error) {
	var ep Episode
	if err := c.postJSON(ctx, "services.episodes", "/v1/episodes", req, &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}
