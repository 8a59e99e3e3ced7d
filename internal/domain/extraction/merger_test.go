package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/woundcare/intake/internal/domain/intake"
	"github.com/woundcare/intake/internal/platform/faults"
)

type stubClient struct {
	result   *Result
	err      error
	calls    int
	lastReq  Request
}

func (s *stubClient) Extract(_ context.Context, req Request) (*Result, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	// copy so the merger's mutation of Applied doesn't leak between calls
	res := *s.result
	return &res, s.err
}

func attach(name string) intake.Attachment {
	return intake.Attachment{Filename: name, ContentType: "image/png", Data: []byte{0x89}}
}

func newMerger(client Client) (*Merger, *intake.FormState) {
	fs := intake.NewFormState()
	return NewMerger(fs, client, zerolog.Nop()), fs
}

func TestSubmitCardFrontFiresExtraction(t *testing.T) {
	client := &stubClient{result: &Result{Success: true, Fields: map[string]string{
		"patient_first_name": "Ada",
		"patient_last_name":  "Lovelace",
		"patient_dob":        "1990-02-14",
		"payer_name":         "Acme Health",
	}}}
	m, fs := newMerger(client)

	res, err := m.SubmitDocument(context.Background(), attach("front.png"), KindInsuranceCard, SlotFront)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected 1 extraction call, got %d", client.calls)
	}
	if client.lastReq.Back != nil {
		t.Error("no back image should be attached on front-only upload")
	}

	for _, field := range []string{"patient_first_name", "patient_last_name", "patient_dob", "primary_insurance_name"} {
		if _, ok := fs.Get(field); !ok {
			t.Errorf("field %s not populated", field)
		}
		if !fs.Extracted(field) {
			t.Errorf("field %s missing provenance flag", field)
		}
	}
	if len(res.Applied) != 4 {
		t.Errorf("expected 4 applied fields, got %v", res.Applied)
	}
}

func TestSubmitCardBackAloneHoldsExtraction(t *testing.T) {
	client := &stubClient{result: &Result{Success: true, Fields: map[string]string{}}}
	m, _ := newMerger(client)

	res, err := m.SubmitDocument(context.Background(), attach("back.png"), KindInsuranceCard, SlotBack)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Error("back-only upload should not produce a result")
	}
	if client.calls != 0 {
		t.Errorf("expected no extraction call, got %d", client.calls)
	}
}

func TestBackAfterFrontRetriggersWithBothFaces(t *testing.T) {
	client := &stubClient{result: &Result{Success: true, Fields: map[string]string{"member_id": "M123"}}}
	m, _ := newMerger(client)

	if _, err := m.SubmitDocument(context.Background(), attach("front.png"), KindInsuranceCard, SlotFront); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.SubmitDocument(context.Background(), attach("back.png"), KindInsuranceCard, SlotBack); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if client.calls != 2 {
		t.Fatalf("expected 2 extraction calls, got %d", client.calls)
	}
	if client.lastReq.Front == nil || client.lastReq.Back == nil {
		t.Error("second call should carry both card faces")
	}
}

func TestUserEditSurvivesBackCardExtraction(t *testing.T) {
	client := &stubClient{result: &Result{Success: true, Fields: map[string]string{
		"patient_last_name": "Lovelace",
	}}}
	m, fs := newMerger(client)

	if _, err := m.SubmitDocument(context.Background(), attach("front.png"), KindInsuranceCard, SlotFront); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// user corrects the extracted last name
	fs.Set("patient_last_name", "Hopper")

	client.result = &Result{Success: true, Fields: map[string]string{"patient_last_name": "Lovelace-Byron"}}
	if _, err := m.SubmitDocument(context.Background(), attach("back.png"), KindInsuranceCard, SlotBack); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := fs.GetString("patient_last_name"); got != "Hopper" {
		t.Errorf("user edit lost: got %q", got)
	}
}

func TestClinicalNoteNameSplitting(t *testing.T) {
	client := &stubClient{result: &Result{Success: true, Fields: map[string]string{
		"patient_name": "Ada King Lovelace",
	}}}
	m, fs := newMerger(client)

	if _, err := m.SubmitDocument(context.Background(), attach("note.pdf"), KindClinicalNote, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fs.GetString("patient_first_name"); got != "Ada" {
		t.Errorf("first name: got %q", got)
	}
	if got := fs.GetString("patient_last_name"); got != "King Lovelace" {
		t.Errorf("last name: got %q", got)
	}
}

func TestClinicalNoteAliasCoalescing(t *testing.T) {
	client := &stubClient{result: &Result{Success: true, Fields: map[string]string{
		"primary_diagnosis": "E11.621",
		"diagnosis":         "should lose: alias order",
	}}}
	m, fs := newMerger(client)

	if _, err := m.SubmitDocument(context.Background(), attach("note.pdf"), KindClinicalNote, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fs.GetString("primary_diagnosis"); got != "E11.621" {
		t.Errorf("alias coalescing: got %q", got)
	}
}

func TestClinicalNoteAliasFallback(t *testing.T) {
	client := &stubClient{result: &Result{Success: true, Fields: map[string]string{
		"diagnosis": "L97.419",
	}}}
	m, fs := newMerger(client)

	if _, err := m.SubmitDocument(context.Background(), attach("note.pdf"), KindClinicalNote, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fs.GetString("primary_diagnosis"); got != "L97.419" {
		t.Errorf("alias fallback: got %q", got)
	}
}

func TestUnknownKeysIgnored(t *testing.T) {
	client := &stubClient{result: &Result{Success: true, Fields: map[string]string{
		"totally_new_key": "value",
		"patient_dob":     "1990-02-14",
	}}}
	m, fs := newMerger(client)

	res, err := m.SubmitDocument(context.Background(), attach("front.png"), KindInsuranceCard, SlotFront)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Applied) != 1 || res.Applied[0] != "patient_dob" {
		t.Errorf("expected only patient_dob applied, got %v", res.Applied)
	}
	if _, ok := fs.Get("totally_new_key"); ok {
		t.Error("unknown extraction key must not enter canonical state")
	}
}

func TestExtractionFailureLeavesStateUntouched(t *testing.T) {
	client := &stubClient{result: &Result{Success: false}}
	m, fs := newMerger(client)

	_, err := m.SubmitDocument(context.Background(), attach("front.png"), KindInsuranceCard, SlotFront)
	if err == nil {
		t.Fatal("expected extraction fault")
	}
	if faults.KindOf(err) != faults.KindExtraction {
		t.Errorf("expected extraction kind, got %v", faults.KindOf(err))
	}
	snap := fs.Snapshot()
	if len(snap.Values) != 0 {
		t.Errorf("state should be untouched on failure, got %v", snap.Values)
	}
}

func TestTransportErrorIsRecoverable(t *testing.T) {
	client := &stubClient{err: errors.New("connection refused")}
	m, _ := newMerger(client)

	_, err := m.SubmitDocument(context.Background(), attach("front.png"), KindInsuranceCard, SlotFront)
	if err == nil {
		t.Fatal("expected error")
	}
	if !faults.Retryable(err) {
		t.Error("extraction transport errors must be retryable")
	}
}
