package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/woundcare/intake/internal/domain/extraction"
	"github.com/woundcare/intake/internal/domain/intake"
	"github.com/woundcare/intake/internal/domain/manufacturer"
	"github.com/woundcare/intake/internal/platform/faults"
)

// Notifier receives submission status changes for delivery to registered
// listeners. Implementations must not block.
type Notifier interface {
	SubmissionUpdated(ctx context.Context, rec *SubmissionRecord)
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithNotifier publishes submission status changes to n.
func WithNotifier(n Notifier) RouterOption {
	return func(r *Router) { r.notifier = n }
}

// Router evaluates the fulfillment decision for a session and drives the
// chosen strategy through its state machine.
type Router struct {
	store      SubmissionStore
	mapper     FieldMapper
	renderer   PDFRenderer
	esign      ESignProvider
	dispatcher Dispatcher
	notifier   Notifier
	log        zerolog.Logger
	now        func() time.Time
}

func NewRouter(store SubmissionStore, mapper FieldMapper, renderer PDFRenderer, esign ESignProvider, dispatcher Dispatcher, log zerolog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		store:      store,
		mapper:     mapper,
		renderer:   renderer,
		esign:      esign,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "fulfillment").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Router) published(ctx context.Context, rec *SubmissionRecord) {
	if r.notifier != nil {
		r.notifier.SubmissionUpdated(ctx, rec)
	}
}

// decide picks the strategy from the manufacturer configuration alone, so
// the same configuration always routes the same way.
func decide(cfg *manufacturer.Config) StrategyName {
	switch {
	case !cfg.SignatureRequired:
		return StrategySkip
	case cfg.UsesESign():
		return StrategyESign
	default:
		return StrategyMappedDocument
	}
}

// Route evaluates the routing decision for the session. Calling Route again
// while a submission exists returns that submission unchanged; a new one is
// only created after a failed record has been reset.
func (r *Router) Route(ctx context.Context, sessionID uuid.UUID, episodeID string, cfg *manufacturer.Config, state *intake.FormState) (*SubmissionRecord, error) {
	const op = "fulfillment.route"

	existing, err := r.store.Latest(ctx, sessionID)
	if err != nil {
		return nil, faults.Wrap(faults.KindService, op, err)
	}
	if existing != nil {
		if !existing.Status.Terminal() {
			// A second active submission per session is a contract
			// violation; reuse the open one instead of duplicating it.
			r.log.Error().
				Str("session_id", sessionID.String()).
				Str("submission_id", existing.SubmissionID.String()).
				Str("status", string(existing.Status)).
				Msg("route called with an active submission, reusing it")
		}
		return existing, nil
	}

	now := r.now()
	rec := &SubmissionRecord{
		SubmissionID:   uuid.New(),
		SessionID:      sessionID,
		ManufacturerID: cfg.ID,
		Strategy:       decide(cfg),
		Status:         StatusRouting,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	switch rec.Strategy {
	case StrategySkip:
		// Terminal sentinel. No external call is made.
		rec.Status = StatusSkipped
		rec.CompletedAt = &now
		if err := r.store.Create(ctx, rec); err != nil {
			return nil, faults.Wrap(faults.KindService, op, err)
		}
		r.log.Info().
			Str("session_id", sessionID.String()).
			Str("manufacturer_id", cfg.ID).
			Msg("signature not required, fulfillment skipped")
		r.published(ctx, rec)
		return rec, nil

	case StrategyESign:
		if err := r.store.Create(ctx, rec); err != nil {
			return nil, faults.Wrap(faults.KindService, op, err)
		}
		return r.startESign(ctx, rec, episodeID, cfg)

	default:
		if err := r.store.Create(ctx, rec); err != nil {
			return nil, faults.Wrap(faults.KindService, op, err)
		}
		return r.runMappedDocument(ctx, rec, episodeID, cfg, state)
	}
}

func (r *Router) startESign(ctx context.Context, rec *SubmissionRecord, episodeID string, cfg *manufacturer.Config) (*SubmissionRecord, error) {
	const op = "fulfillment.esign"

	sess, err := r.esign.CreateSession(ctx, ESignRequest{
		EpisodeID:        episodeID,
		ManufacturerName: cfg.Name,
		TemplateRef:      cfg.FulfillmentTemplateRef,
	})
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		if uerr := r.store.Update(ctx, rec); uerr != nil {
			r.log.Error().Err(uerr).Str("submission_id", rec.SubmissionID.String()).Msg("persist failed status")
		}
		r.published(ctx, rec)
		return rec, faults.Wrap(faults.KindOf(err), op, err)
	}

	rec.Status = StatusESignPending
	rec.SigningURL = sess.SigningURL
	rec.DocumentID = sess.ProviderRef
	if err := r.store.Update(ctx, rec); err != nil {
		return nil, faults.Wrap(faults.KindService, op, err)
	}
	r.log.Info().
		Str("submission_id", rec.SubmissionID.String()).
		Str("manufacturer_id", cfg.ID).
		Msg("e-sign session opened")
	r.published(ctx, rec)
	return rec, nil
}

func (r *Router) runMappedDocument(ctx context.Context, rec *SubmissionRecord, episodeID string, cfg *manufacturer.Config, state *intake.FormState) (*SubmissionRecord, error) {
	const op = "fulfillment.map"

	rec.Status = StatusMLMapping
	if err := r.store.Update(ctx, rec); err != nil {
		return nil, faults.Wrap(faults.KindService, op, err)
	}

	mapped, err := r.mapper.MapFields(ctx, MapRequest{
		ManufacturerID: cfg.ID,
		Snapshot:       state.Snapshot(),
		Products:       state.Products(),
	})
	if err != nil {
		// Mapping is best-effort. The form renders without mapped
		// fields and the user fills the gaps by hand.
		r.log.Warn().Err(err).
			Str("submission_id", rec.SubmissionID.String()).
			Msg("field mapping failed, continuing without mapped fields")
	} else {
		state.MergeManufacturerFields(mapped.MappedFields)
	}

	rec.Status = StatusPDFReady
	if err := r.store.Update(ctx, rec); err != nil {
		return nil, faults.Wrap(faults.KindService, op, err)
	}
	return r.render(ctx, rec, episodeID, state)
}

func (r *Router) render(ctx context.Context, rec *SubmissionRecord, episodeID string, state *intake.FormState) (*SubmissionRecord, error) {
	const op = "fulfillment.render"

	res, err := r.renderer.Render(ctx, RenderRequest{
		EpisodeID:      episodeID,
		ManufacturerID: rec.ManufacturerID,
		Snapshot:       state.Snapshot(),
	})
	if err != nil {
		// Stay at pdf_ready with the error recorded so the render can
		// be retried without resetting the submission.
		rec.Error = err.Error()
		if uerr := r.store.Update(ctx, rec); uerr != nil {
			r.log.Error().Err(uerr).Str("submission_id", rec.SubmissionID.String()).Msg("persist render error")
		}
		return rec, faults.Wrap(faults.KindOf(err), op, err)
	}

	rec.Status = StatusEmailPending
	rec.DocumentID = res.DocumentID
	rec.PDFURL = res.PDFURL
	rec.Error = ""
	if err := r.store.Update(ctx, rec); err != nil {
		return nil, faults.Wrap(faults.KindService, op, err)
	}
	r.log.Info().
		Str("submission_id", rec.SubmissionID.String()).
		Str("document_id", res.DocumentID).
		Msg("pdf rendered, awaiting dispatch")
	r.published(ctx, rec)
	return rec, nil
}

// RetryRender re-attempts a failed PDF render for a mapped-document
// submission still at pdf_ready.
func (r *Router) RetryRender(ctx context.Context, sessionID uuid.UUID, episodeID string, state *intake.FormState) (*SubmissionRecord, error) {
	const op = "fulfillment.retry_render"

	rec, err := r.store.Latest(ctx, sessionID)
	if err != nil {
		return nil, faults.Wrap(faults.KindService, op, err)
	}
	if rec == nil || rec.Strategy != StrategyMappedDocument || rec.Status != StatusPDFReady {
		return nil, faults.New(faults.KindValidation, op, "no render to retry for session %s", sessionID)
	}
	return r.render(ctx, rec, episodeID, state)
}

// CompleteESign records the signing callback for a pending e-sign submission.
func (r *Router) CompleteESign(ctx context.Context, submissionID uuid.UUID) (*SubmissionRecord, error) {
	const op = "fulfillment.complete_esign"

	rec, err := r.store.GetByID(ctx, submissionID)
	if err != nil {
		return nil, faults.Wrap(faults.KindValidation, op, err)
	}
	if rec.Status != StatusESignPending {
		return nil, faults.New(faults.KindContract, op, "submission %s is %s, not %s", submissionID, rec.Status, StatusESignPending)
	}

	now := r.now()
	rec.Status = StatusESignComplete
	rec.CompletedAt = &now
	if err := r.store.Update(ctx, rec); err != nil {
		return nil, faults.Wrap(faults.KindService, op, err)
	}
	r.log.Info().Str("submission_id", submissionID.String()).Msg("e-sign completed")
	r.published(ctx, rec)
	return rec, nil
}

// Dispatch emails the rendered document to the manufacturer. A failed
// dispatch leaves the submission at email_pending so it can be retried.
func (r *Router) Dispatch(ctx context.Context, sessionID uuid.UUID, cfg *manufacturer.Config, state *intake.FormState) (*SubmissionRecord, error) {
	const op = "fulfillment.dispatch"

	rec, err := r.store.Latest(ctx, sessionID)
	if err != nil {
		return nil, faults.Wrap(faults.KindService, op, err)
	}
	if rec == nil || rec.Status != StatusEmailPending {
		return nil, faults.New(faults.KindValidation, op, "no submission awaiting dispatch for session %s", sessionID)
	}

	req := DispatchRequest{
		ManufacturerID: cfg.ID,
		DispatchEmail:  cfg.DispatchEmail,
		DocumentID:     rec.DocumentID,
		Snapshot:       state.Snapshot(),
	}
	if cfg.SupportsInsuranceUpload {
		for _, slot := range []string{extraction.AttachmentCardFront, extraction.AttachmentCardBack} {
			if a, ok := state.Attachment(slot); ok {
				req.Attachments = append(req.Attachments, a)
			}
		}
	}

	res, err := r.dispatcher.Dispatch(ctx, req)
	if err != nil {
		rec.Error = err.Error()
		if uerr := r.store.Update(ctx, rec); uerr != nil {
			r.log.Error().Err(uerr).Str("submission_id", rec.SubmissionID.String()).Msg("persist dispatch error")
		}
		return rec, faults.Wrap(faults.KindOf(err), op, err)
	}

	now := r.now()
	rec.Status = StatusEmailSent
	rec.Error = ""
	rec.CompletedAt = &now
	if res.SubmissionRef != "" {
		rec.DocumentID = res.SubmissionRef
	}
	if err := r.store.Update(ctx, rec); err != nil {
		return nil, faults.Wrap(faults.KindService, op, err)
	}
	r.log.Info().
		Str("submission_id", rec.SubmissionID.String()).
		Str("manufacturer_id", cfg.ID).
		Msg("submission dispatched")
	r.published(ctx, rec)
	return rec, nil
}

// Reset supersedes a failed submission so the session can be routed again.
func (r *Router) Reset(ctx context.Context, sessionID uuid.UUID) error {
	const op = "fulfillment.reset"

	rec, err := r.store.Latest(ctx, sessionID)
	if err != nil {
		return faults.Wrap(faults.KindService, op, err)
	}
	if rec == nil {
		return faults.New(faults.KindValidation, op, "session %s has no submission", sessionID)
	}
	if rec.Status != StatusFailed {
		return faults.New(faults.KindValidation, op, "submission %s is %s, only failed submissions can be reset", rec.SubmissionID, rec.Status)
	}

	rec.Superseded = true
	if err := r.store.Update(ctx, rec); err != nil {
		return faults.Wrap(faults.KindService, op, err)
	}
	r.log.Info().Str("submission_id", rec.SubmissionID.String()).Msg("failed submission reset")
	return nil
}

// Status returns the latest submission for the session, or nil when the
// session has not been routed.
func (r *Router) Status(ctx context.Context, sessionID uuid.UUID) (*SubmissionRecord, error) {
	rec, err := r.store.Latest(ctx, sessionID)
	if err != nil {
		return nil, faults.Wrap(faults.KindService, "fulfillment.status", err)
	}
	return rec, nil
}
