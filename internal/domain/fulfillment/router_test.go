package fulfillment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/woundcare/intake/internal/domain/intake"
	"github.com/woundcare/intake/internal/domain/manufacturer"
	"github.com/woundcare/intake/internal/platform/faults"
)

type stubMapper struct {
	calls  int
	fields map[string]string
	err    error
}

func (s *stubMapper) MapFields(_ context.Context, _ MapRequest) (*MapResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &MapResult{MappedFields: s.fields}, nil
}

type stubRenderer struct {
	calls int
	err   error
}

func (s *stubRenderer) Render(_ context.Context, _ RenderRequest) (*RenderResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &RenderResult{DocumentID: "doc-1", PDFURL: "https://docs.example/doc-1.pdf"}, nil
}

type stubESign struct {
	calls int
	err   error
}

func (s *stubESign) CreateSession(_ context.Context, _ ESignRequest) (*ESignSession, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &ESignSession{ProviderRef: "env-1", SigningURL: "https://sign.example/env-1"}, nil
}

type stubDispatcher struct {
	calls   int
	lastReq DispatchRequest
	err     error
}

func (s *stubDispatcher) Dispatch(_ context.Context, req DispatchRequest) (*DispatchResult, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &DispatchResult{SubmissionRef: "sub-1", Status: "accepted"}, nil
}

type fixture struct {
	router     *Router
	store      *InMemorySubmissionStore
	mapper     *stubMapper
	renderer   *stubRenderer
	esign      *stubESign
	dispatcher *stubDispatcher
}

func newFixture() *fixture {
	f := &fixture{
		store:      NewInMemorySubmissionStore(),
		mapper:     &stubMapper{fields: map[string]string{"ivr_q1": "yes"}},
		renderer:   &stubRenderer{},
		esign:      &stubESign{},
		dispatcher: &stubDispatcher{},
	}
	f.router = NewRouter(f.store, f.mapper, f.renderer, f.esign, f.dispatcher, zerolog.Nop())
	return f
}

func skipConfig() *manufacturer.Config {
	return &manufacturer.Config{ID: "stratus", Name: "Stratus Medical", SignatureRequired: false}
}

func esignConfig() *manufacturer.Config {
	return &manufacturer.Config{
		ID: "meridian", Name: "Meridian Biologics",
		SignatureRequired:      true,
		FulfillmentTemplateRef: "tmpl-meridian-ivr",
	}
}

func mappedConfig() *manufacturer.Config {
	return &manufacturer.Config{
		ID: "calyx", Name: "Calyx Wound Care",
		SignatureRequired:       true,
		SupportsInsuranceUpload: true,
		DispatchEmail:           "orders@calyx.example",
	}
}

func TestRouteSkipMakesNoExternalCalls(t *testing.T) {
	f := newFixture()
	sessionID := uuid.New()

	rec, err := f.router.Route(context.Background(), sessionID, "ep-1", skipConfig(), intake.NewFormState())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if rec.Strategy != StrategySkip || rec.Status != StatusSkipped {
		t.Fatalf("got strategy=%s status=%s, want skip/skipped", rec.Strategy, rec.Status)
	}
	if rec.CompletedAt == nil {
		t.Fatal("skipped submission should be completed")
	}
	if f.mapper.calls+f.renderer.calls+f.esign.calls+f.dispatcher.calls != 0 {
		t.Fatal("skip routing must not contact any external service")
	}
}

func TestRouteSkipIsIdempotent(t *testing.T) {
	f := newFixture()
	sessionID := uuid.New()
	state := intake.NewFormState()

	first, err := f.router.Route(context.Background(), sessionID, "ep-1", skipConfig(), state)
	if err != nil {
		t.Fatalf("first route: %v", err)
	}
	second, err := f.router.Route(context.Background(), sessionID, "ep-1", skipConfig(), state)
	if err != nil {
		t.Fatalf("second route: %v", err)
	}
	if second.SubmissionID != first.SubmissionID {
		t.Fatal("re-routing created a second sentinel record")
	}
	all, _ := f.store.ListBySession(context.Background(), sessionID)
	if len(all) != 1 {
		t.Fatalf("got %d records, want 1", len(all))
	}
}

func TestRouteESignOpensSigningSession(t *testing.T) {
	f := newFixture()
	sessionID := uuid.New()

	rec, err := f.router.Route(context.Background(), sessionID, "ep-1", esignConfig(), intake.NewFormState())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if rec.Strategy != StrategyESign || rec.Status != StatusESignPending {
		t.Fatalf("got strategy=%s status=%s, want e_sign/e_sign_pending", rec.Strategy, rec.Status)
	}
	if rec.SigningURL != "https://sign.example/env-1" {
		t.Fatalf("signing url = %q", rec.SigningURL)
	}
	if f.esign.calls != 1 {
		t.Fatalf("esign calls = %d, want 1", f.esign.calls)
	}
}

func TestCompleteESign(t *testing.T) {
	f := newFixture()
	sessionID := uuid.New()

	rec, _ := f.router.Route(context.Background(), sessionID, "ep-1", esignConfig(), intake.NewFormState())

	done, err := f.router.CompleteESign(context.Background(), rec.SubmissionID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusESignComplete || done.CompletedAt == nil {
		t.Fatalf("got status=%s completed=%v", done.Status, done.CompletedAt)
	}

	// Completing twice violates the state machine.
	if _, err := f.router.CompleteESign(context.Background(), rec.SubmissionID); err == nil {
		t.Fatal("expected error completing a completed submission")
	} else if faults.KindOf(err) != faults.KindContract {
		t.Fatalf("kind = %s, want contract", faults.KindOf(err))
	}
}

func TestRouteESignFailureIsResettable(t *testing.T) {
	f := newFixture()
	f.esign.err = errors.New("template not found")
	sessionID := uuid.New()
	state := intake.NewFormState()

	rec, err := f.router.Route(context.Background(), sessionID, "ep-1", esignConfig(), state)
	if err == nil {
		t.Fatal("expected route error")
	}
	if rec.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}

	// The failed record blocks re-routing until reset.
	again, err := f.router.Route(context.Background(), sessionID, "ep-1", esignConfig(), state)
	if err != nil {
		t.Fatalf("route while failed: %v", err)
	}
	if again.SubmissionID != rec.SubmissionID {
		t.Fatal("routing past a failed record without reset")
	}

	if err := f.router.Reset(context.Background(), sessionID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	f.esign.err = nil
	fresh, err := f.router.Route(context.Background(), sessionID, "ep-1", esignConfig(), state)
	if err != nil {
		t.Fatalf("route after reset: %v", err)
	}
	if fresh.SubmissionID == rec.SubmissionID || fresh.Status != StatusESignPending {
		t.Fatalf("got %s/%s, want a fresh pending submission", fresh.SubmissionID, fresh.Status)
	}
}

func TestRouteMappedDocumentHappyPath(t *testing.T) {
	f := newFixture()
	sessionID := uuid.New()
	state := intake.NewFormState()

	rec, err := f.router.Route(context.Background(), sessionID, "ep-1", mappedConfig(), state)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if rec.Strategy != StrategyMappedDocument || rec.Status != StatusEmailPending {
		t.Fatalf("got strategy=%s status=%s, want mapped_document/email_pending", rec.Strategy, rec.Status)
	}
	if rec.PDFURL == "" {
		t.Fatal("missing pdf url")
	}
	snap := state.Snapshot()
	if v, ok := snap.Lookup(intake.ManufacturerFieldsKey); !ok {
		t.Fatal("mapped fields not merged into form state")
	} else if fields, _ := v.(map[string]interface{}); fields["ivr_q1"] != "yes" {
		t.Fatalf("mapped fields = %v", fields)
	}
}

func TestRouteMappingFailureStillRendersPDF(t *testing.T) {
	f := newFixture()
	f.mapper.err = errors.New("model timeout")
	sessionID := uuid.New()
	state := intake.NewFormState()

	rec, err := f.router.Route(context.Background(), sessionID, "ep-1", mappedConfig(), state)
	if err != nil {
		t.Fatalf("route should tolerate mapping failure, got %v", err)
	}
	if rec.Status != StatusEmailPending {
		t.Fatalf("status = %s, want email_pending", rec.Status)
	}
	if f.renderer.calls != 1 {
		t.Fatalf("renderer calls = %d, want 1", f.renderer.calls)
	}
	if _, ok := state.Snapshot().Lookup(intake.ManufacturerFieldsKey); ok {
		t.Fatal("no fields should be merged when mapping fails")
	}
}

func TestRouteRenderFailureIsRetryable(t *testing.T) {
	f := newFixture()
	f.renderer.err = errors.New("renderer 503")
	sessionID := uuid.New()
	state := intake.NewFormState()

	rec, err := f.router.Route(context.Background(), sessionID, "ep-1", mappedConfig(), state)
	if err == nil {
		t.Fatal("expected render error")
	}
	if !faults.Retryable(err) {
		t.Fatalf("render failure should be retryable, kind = %s", faults.KindOf(err))
	}
	if rec.Status != StatusPDFReady || rec.Error == "" {
		t.Fatalf("got status=%s error=%q", rec.Status, rec.Error)
	}

	f.renderer.err = nil
	retried, err := f.router.RetryRender(context.Background(), sessionID, "ep-1", state)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != StatusEmailPending || retried.Error != "" {
		t.Fatalf("got status=%s error=%q after retry", retried.Status, retried.Error)
	}
	// Mapping is not re-run on a render retry.
	if f.mapper.calls != 1 {
		t.Fatalf("mapper calls = %d, want 1", f.mapper.calls)
	}
}

func TestDispatchIncludesInsuranceCardsWhenSupported(t *testing.T) {
	f := newFixture()
	sessionID := uuid.New()
	state := intake.NewFormState()
	state.PutAttachment("insurance_card_front", intake.Attachment{Filename: "front.jpg", ContentType: "image/jpeg", Data: []byte{0xff}})
	state.PutAttachment("insurance_card_back", intake.Attachment{Filename: "back.jpg", ContentType: "image/jpeg", Data: []byte{0xfe}})

	if _, err := f.router.Route(context.Background(), sessionID, "ep-1", mappedConfig(), state); err != nil {
		t.Fatalf("route: %v", err)
	}
	rec, err := f.router.Dispatch(context.Background(), sessionID, mappedConfig(), state)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if rec.Status != StatusEmailSent || rec.CompletedAt == nil {
		t.Fatalf("got status=%s completed=%v", rec.Status, rec.CompletedAt)
	}
	if got := len(f.dispatcher.lastReq.Attachments); got != 2 {
		t.Fatalf("attachments = %d, want 2", got)
	}
	if f.dispatcher.lastReq.DispatchEmail != "orders@calyx.example" {
		t.Fatalf("dispatch email = %q", f.dispatcher.lastReq.DispatchEmail)
	}
}

func TestDispatchFailureStaysPendingForRetry(t *testing.T) {
	f := newFixture()
	f.dispatcher.err = faults.New(faults.KindSessionExpired, "dispatch.client", "token expired")
	sessionID := uuid.New()
	state := intake.NewFormState()

	if _, err := f.router.Route(context.Background(), sessionID, "ep-1", mappedConfig(), state); err != nil {
		t.Fatalf("route: %v", err)
	}
	rec, err := f.router.Dispatch(context.Background(), sessionID, mappedConfig(), state)
	if err == nil {
		t.Fatal("expected dispatch error")
	}
	if faults.KindOf(err) != faults.KindSessionExpired {
		t.Fatalf("kind = %s, want session_expired", faults.KindOf(err))
	}
	if rec.Status != StatusEmailPending {
		t.Fatalf("status = %s, want email_pending for retry", rec.Status)
	}

	f.dispatcher.err = nil
	retried, err := f.router.Dispatch(context.Background(), sessionID, mappedConfig(), state)
	if err != nil {
		t.Fatalf("retry dispatch: %v", err)
	}
	if retried.Status != StatusEmailSent {
		t.Fatalf("status = %s, want email_sent", retried.Status)
	}
	if f.dispatcher.calls != 2 {
		t.Fatalf("dispatcher calls = %d, want 2", f.dispatcher.calls)
	}
}

func TestRoutingIsDeterministic(t *testing.T) {
	cases := []struct {
		name string
		cfg  *manufacturer.Config
		want StrategyName
	}{
		{"no signature", skipConfig(), StrategySkip},
		{"template configured", esignConfig(), StrategyESign},
		{"signature without template", mappedConfig(), StrategyMappedDocument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				if got := decide(tc.cfg); got != tc.want {
					t.Fatalf("decide = %s, want %s", got, tc.want)
				}
			}
		})
	}
}

func TestAtMostOneActiveSubmission(t *testing.T) {
	f := newFixture()
	sessionID := uuid.New()
	state := intake.NewFormState()

	first, err := f.router.Route(context.Background(), sessionID, "ep-1", esignConfig(), state)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	second, err := f.router.Route(context.Background(), sessionID, "ep-1", esignConfig(), state)
	if err != nil {
		t.Fatalf("second route: %v", err)
	}
	if second.SubmissionID != first.SubmissionID {
		t.Fatal("a second active submission was opened for the session")
	}
	if f.esign.calls != 1 {
		t.Fatalf("esign calls = %d, want 1", f.esign.calls)
	}
}

func TestResetRejectsNonFailed(t *testing.T) {
	f := newFixture()
	sessionID := uuid.New()

	if _, err := f.router.Route(context.Background(), sessionID, "ep-1", esignConfig(), intake.NewFormState()); err != nil {
		t.Fatalf("route: %v", err)
	}
	err := f.router.Reset(context.Background(), sessionID)
	if err == nil {
		t.Fatal("expected reset of a pending submission to fail")
	}
	if faults.KindOf(err) != faults.KindValidation {
		t.Fatalf("kind = %s, want validation", faults.KindOf(err))
	}
}
