package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/woundcare/intake/internal/domain/extraction"
	"github.com/woundcare/intake/internal/domain/fulfillment"
	"github.com/woundcare/intake/internal/domain/intake"
	"github.com/woundcare/intake/internal/domain/manufacturer"
	"github.com/woundcare/intake/internal/domain/review"
	"github.com/woundcare/intake/internal/domain/wizard"
	"github.com/woundcare/intake/internal/platform/faults"
	"github.com/woundcare/intake/internal/platform/services"
)

// Service drives the intake wizard: it owns session lifecycle and fans
// requests out to the extraction merger, the step controller, and the
// fulfillment router.
type Service struct {
	store         Store
	episodes      services.EpisodeCreator
	extractor     extraction.Client
	manufacturers manufacturer.Repository
	router        *fulfillment.Router
	log           zerolog.Logger
}

func NewService(store Store, episodes services.EpisodeCreator, extractor extraction.Client, manufacturers manufacturer.Repository, router *fulfillment.Router, log zerolog.Logger) *Service {
	return &Service{
		store:         store,
		episodes:      episodes,
		extractor:     extractor,
		manufacturers: manufacturers,
		router:        router,
		log:           log.With().Str("component", "session").Logger(),
	}
}

// StartRequest opens a new wizard session.
type StartRequest struct {
	ProviderNPI    string `json:"provider_npi"`
	ProviderName   string `json:"provider_name,omitempty"`
	FacilityID     string `json:"facility_id"`
	PatientID      string `json:"patient_id,omitempty"`
	PatientName    string `json:"patient_name,omitempty"`
	PatientDOB     string `json:"patient_dob,omitempty"`
	ManufacturerID string `json:"manufacturer_id"`
}

// Start opens a care episode upstream and creates the session around an
// empty form state. Demographics the upstream system already knows are
// seeded as extraction-owned values so later uploads and user edits win.
func (s *Service) Start(ctx context.Context, req StartRequest, createdBy string) (*Session, error) {
	const op = "session.start"

	if req.ProviderNPI == "" || req.FacilityID == "" {
		return nil, faults.New(faults.KindValidation, op, "provider_npi and facility_id are required")
	}
	if req.ManufacturerID == "" {
		return nil, faults.New(faults.KindValidation, op, "manufacturer_id is required")
	}
	if _, err := s.manufacturers.GetByID(ctx, req.ManufacturerID); err != nil {
		return nil, faults.New(faults.KindValidation, op, "unknown manufacturer %q", req.ManufacturerID)
	}

	ep, err := s.episodes.CreateEpisode(ctx, services.EpisodeRequest{
		ProviderNPI: req.ProviderNPI,
		FacilityID:  req.FacilityID,
		PatientID:   req.PatientID,
		PatientName: req.PatientName,
		PatientDOB:  req.PatientDOB,
	})
	if err != nil {
		return nil, err
	}

	state := intake.NewFormState()
	for field, value := range ep.ExtractedData {
		state.MergeExtracted(field, value)
	}

	// The ordering-provider identity is part of the request, not a document,
	// so it lands user-owned and the review's provider section sees it.
	state.Set("provider_npi", req.ProviderNPI)
	if req.ProviderName != "" {
		state.Set("provider_name", req.ProviderName)
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:             uuid.New(),
		EpisodeID:      ep.EpisodeID,
		PatientRef:     ep.PatientReferenceID,
		ManufacturerID: req.ManufacturerID,
		CreatedBy:      createdBy,
		State:          state,
		Wizard:         wizard.NewController(wizard.DefaultSteps(), state),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, faults.Wrap(faults.KindService, op, err)
	}

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("episode_id", ep.EpisodeID).
		Str("manufacturer_id", req.ManufacturerID).
		Msg("session started")
	return sess, nil
}

// Get loads a session, classifying expiry for the client.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	const op = "session.get"

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrExpired):
			return nil, faults.New(faults.KindSessionExpired, op, "session %s has expired", id)
		case errors.Is(err, ErrNotFound):
			return nil, faults.New(faults.KindValidation, op, "session %s not found", id)
		}
		return nil, faults.Wrap(faults.KindService, op, err)
	}
	return sess, nil
}

func (s *Service) save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(ctx, sess); err != nil {
		return faults.Wrap(faults.KindService, "session.save", err)
	}
	return nil
}

// UpdateFields applies user edits to the form state. A user write always
// wins over extraction, so no guard is needed here.
func (s *Service) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	for field, value := range fields {
		sess.State.Set(field, value)
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SetProducts replaces the product selection.
func (s *Service) SetProducts(ctx context.Context, id uuid.UUID, products []intake.ProductSelection) (*Session, error) {
	const op = "session.products"

	for _, p := range products {
		if p.ProductID == "" {
			return nil, faults.New(faults.KindValidation, op, "product_id is required")
		}
		if p.Quantity <= 0 {
			return nil, faults.New(faults.KindValidation, op, "quantity must be positive for product %q", p.ProductID)
		}
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.State.SetProducts(products)
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// UploadDocument runs the extraction merger over an uploaded document and
// persists whatever it wrote. Extraction failures surface as recoverable
// faults and never block manual entry.
func (s *Service) UploadDocument(ctx context.Context, id uuid.UUID, file intake.Attachment, kind extraction.DocumentKind, slot extraction.Slot) (*extraction.Result, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	merger := extraction.NewMerger(sess.State, s.extractor, s.log)
	res, mergeErr := merger.SubmitDocument(ctx, file, kind, slot)

	// The upload is stored even when extraction fails.
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	if mergeErr != nil {
		return nil, mergeErr
	}
	return res, nil
}

// StepState is the wizard position reported to the client.
type StepState struct {
	Step     int               `json:"step"`
	Name     string            `json:"name"`
	Steps    []wizard.Step     `json:"steps"`
	Errors   map[string]string `json:"errors,omitempty"`
	Complete bool              `json:"complete"`
}

func stepState(sess *Session, errs map[string]string) *StepState {
	return &StepState{
		Step:     sess.Wizard.Current(),
		Name:     sess.Wizard.CurrentStep().Name,
		Steps:    sess.Wizard.Steps(),
		Errors:   errs,
		Complete: sess.Wizard.IsComplete(),
	}
}

// Advance validates the current step and moves forward. A returned error
// map is ordinary flow control: the step did not validate.
func (s *Service) Advance(ctx context.Context, id uuid.UUID) (*StepState, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	errs := sess.Wizard.Advance()
	if errs == nil {
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
	}
	return stepState(sess, errs), nil
}

// JumpTo moves back to an already-visited step for editing.
func (s *Service) JumpTo(ctx context.Context, id uuid.UUID, step int) (*StepState, error) {
	const op = "session.jump"

	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sess.Wizard.JumpTo(step); err != nil {
		return nil, faults.Wrap(faults.KindValidation, op, err)
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return stepState(sess, nil), nil
}

// Review builds the role-filtered review view model alongside the latest
// submission, if any.
func (s *Service) Review(ctx context.Context, id uuid.UUID, role string) (*review.ViewModel, *fulfillment.SubmissionRecord, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.router.Status(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	post := rec != nil && rec.Status.Terminal() && rec.Status != fulfillment.StatusFailed
	return review.Build(sess.State.Snapshot(), role, post), rec, nil
}

// Route runs the fulfillment routing decision once the wizard is complete.
// An incomplete wizard returns the aggregated field errors instead of a
// submission.
func (s *Service) Route(ctx context.Context, id uuid.UUID) (*fulfillment.SubmissionRecord, map[string]string, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !sess.Wizard.IsComplete() {
		return nil, sess.Wizard.Errors(), nil
	}

	cfg, err := s.manufacturers.GetByID(ctx, sess.ManufacturerID)
	if err != nil {
		return nil, nil, faults.Wrap(faults.KindService, "session.route", err)
	}
	rec, routeErr := s.router.Route(ctx, sess.ID, sess.EpisodeID, cfg, sess.State)

	// Mapped fields may have landed in the form state even when routing
	// ultimately failed.
	if err := s.save(ctx, sess); err != nil {
		return nil, nil, err
	}
	return rec, nil, routeErr
}

// Dispatch emails the rendered document to the manufacturer.
func (s *Service) Dispatch(ctx context.Context, id uuid.UUID) (*fulfillment.SubmissionRecord, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg, err := s.manufacturers.GetByID(ctx, sess.ManufacturerID)
	if err != nil {
		return nil, faults.Wrap(faults.KindService, "session.dispatch", err)
	}
	return s.router.Dispatch(ctx, sess.ID, cfg, sess.State)
}

// RetryRender re-attempts a failed PDF render.
func (s *Service) RetryRender(ctx context.Context, id uuid.UUID) (*fulfillment.SubmissionRecord, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.router.RetryRender(ctx, sess.ID, sess.EpisodeID, sess.State)
}

// ResetSubmission supersedes a failed submission so routing can run again.
func (s *Service) ResetSubmission(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.router.Reset(ctx, id)
}

// CompleteESign records an e-signature completion callback.
func (s *Service) CompleteESign(ctx context.Context, submissionID uuid.UUID) (*fulfillment.SubmissionRecord, error) {
	return s.router.CompleteESign(ctx, submissionID)
}

// Submission returns the latest submission record for the session.
func (s *Service) Submission(ctx context.Context, id uuid.UUID) (*fulfillment.SubmissionRecord, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.router.Status(ctx, id)
}

// Finish completes the wizard run after fulfillment reached a successful
// terminal state: the form state is cleared and the session removed. The
// final audit view is returned to the caller.
func (s *Service) Finish(ctx context.Context, id uuid.UUID, role string) (*review.ViewModel, error) {
	const op = "session.finish"

	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := s.router.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.Status.Terminal() || rec.Status == fulfillment.StatusFailed {
		return nil, faults.New(faults.KindValidation, op, "fulfillment has not completed for session %s", id)
	}

	vm := review.Build(sess.State.Snapshot(), role, true)
	sess.State.Clear()
	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, faults.Wrap(faults.KindService, op, err)
	}
	s.log.Info().Str("session_id", id.String()).Msg("session finished")
	return vm, nil
}

// Abandon discards the session and everything in it.
func (s *Service) Abandon(ctx context.Context, id uuid.UUID) error {
	const op = "session.abandon"

	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.State.Clear()
	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return faults.Wrap(faults.KindService, op, err)
	}
	s.log.Info().Str("session_id", id.String()).Msg("session abandoned")
	return nil
}
