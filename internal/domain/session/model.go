// Package session owns the lifetime of one wizard run: the form state, the
// step controller, and the routing outcome, persisted between requests and
// cleared on final submission or abandonment.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/woundcare/intake/internal/domain/intake"
	"github.com/woundcare/intake/internal/domain/wizard"
)

// Session is one in-flight intake wizard run.
type Session struct {
	ID             uuid.UUID
	EpisodeID      string
	PatientRef     string
	ManufacturerID string
	CreatedBy      string
	State          *intake.FormState
	Wizard         *wizard.Controller
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// persisted is the storable projection of a session. The live FormState and
// Controller are rebuilt from it on load.
type persisted struct {
	ID             uuid.UUID           `json:"id"`
	EpisodeID      string              `json:"episode_id"`
	PatientRef     string              `json:"patient_ref"`
	ManufacturerID string              `json:"manufacturer_id"`
	CreatedBy      string              `json:"created_by"`
	Snapshot       *intake.Snapshot    `json:"snapshot"`
	Documents      map[string]intake.Attachment `json:"documents,omitempty"`
	Step           int                 `json:"step"`
	Visited        []bool              `json:"visited"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func (s *Session) toPersisted() *persisted {
	snap := s.State.Snapshot()
	return &persisted{
		ID:             s.ID,
		EpisodeID:      s.EpisodeID,
		PatientRef:     s.PatientRef,
		ManufacturerID: s.ManufacturerID,
		CreatedBy:      s.CreatedBy,
		Snapshot:       snap,
		Documents:      snap.Documents,
		Step:           s.Wizard.Current(),
		Visited:        s.Wizard.VisitedSteps(),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func (p *persisted) toSession() *Session {
	if p.Snapshot != nil && p.Snapshot.Documents == nil {
		p.Snapshot.Documents = p.Documents
	}
	state := intake.Restore(p.Snapshot)
	return &Session{
		ID:             p.ID,
		EpisodeID:      p.EpisodeID,
		PatientRef:     p.PatientRef,
		ManufacturerID: p.ManufacturerID,
		CreatedBy:      p.CreatedBy,
		State:          state,
		Wizard:         wizard.RestoreController(wizard.DefaultSteps(), state, p.Step, p.Visited),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}
