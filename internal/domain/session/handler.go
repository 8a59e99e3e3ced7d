package session

import (
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/woundcare/intake/internal/domain/extraction"
	"github.com/woundcare/intake/internal/domain/intake"
	"github.com/woundcare/intake/internal/domain/review"
	"github.com/woundcare/intake/internal/platform/auth"
	"github.com/woundcare/intake/internal/platform/faults"
)

// maxUploadBytes bounds document uploads (scans of cards and notes).
const maxUploadBytes = 20 << 20

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/sessions", auth.RequireRole("provider", "office_admin", "order_management"))
	g.POST("", h.Start, auth.RequireRole("provider", "office_admin"))
	g.GET("/:id", h.Get)
	g.PATCH("/:id/fields", h.UpdateFields)
	g.PUT("/:id/products", h.SetProducts)
	g.POST("/:id/documents", h.UploadDocument)
	g.POST("/:id/advance", h.Advance)
	g.POST("/:id/jump", h.JumpTo)
	g.GET("/:id/review", h.Review)
	g.POST("/:id/route", h.Route)
	g.GET("/:id/submission", h.Submission)
	g.POST("/:id/dispatch", h.Dispatch)
	g.POST("/:id/render/retry", h.RetryRender)
	g.POST("/:id/submission/reset", h.Reset)
	g.POST("/:id/finish", h.Finish)
	g.DELETE("/:id", h.Abandon)

	// Signing completion arrives from the e-sign provider, not a user.
	api.POST("/esign/callback", h.ESignCallback)
}

// httpError translates the fault taxonomy into an HTTP response.
func httpError(err error) error {
	return echo.NewHTTPError(faults.HTTPStatus(err), map[string]string{
		"kind":  string(faults.KindOf(err)),
		"error": err.Error(),
	})
}

func sessionID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	return id, nil
}

// viewerRole picks the role used for review redaction. Order management is
// the most restricted role a user can hold, so it wins when present.
func viewerRole(c echo.Context) string {
	roles := auth.RolesFromContext(c.Request().Context())
	for _, r := range roles {
		if r == review.RoleOrderManagement {
			return r
		}
	}
	if len(roles) > 0 {
		return roles[0]
	}
	return review.RoleProvider
}

type sessionResponse struct {
	ID             uuid.UUID        `json:"id"`
	EpisodeID      string           `json:"episode_id"`
	PatientRef     string           `json:"patient_ref"`
	ManufacturerID string           `json:"manufacturer_id"`
	Wizard         *StepState       `json:"wizard"`
	Values         *intake.Snapshot `json:"form"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func toResponse(sess *Session) *sessionResponse {
	return &sessionResponse{
		ID:             sess.ID,
		EpisodeID:      sess.EpisodeID,
		PatientRef:     sess.PatientRef,
		ManufacturerID: sess.ManufacturerID,
		Wizard:         stepState(sess, nil),
		Values:         sess.State.Snapshot(),
		CreatedAt:      sess.CreatedAt,
		UpdatedAt:      sess.UpdatedAt,
	}
}

func (h *Handler) Start(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	createdBy := auth.UserIDFromContext(c.Request().Context())
	sess, err := h.svc.Start(c.Request().Context(), req, createdBy)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, toResponse(sess))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toResponse(sess))
}

func (h *Handler) UpdateFields(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	var fields map[string]interface{}
	if err := c.Bind(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.UpdateFields(c.Request().Context(), id, fields)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toResponse(sess))
}

func (h *Handler) SetProducts(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	var products []intake.ProductSelection
	if err := c.Bind(&products); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.SetProducts(c.Request().Context(), id, products)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toResponse(sess))
}

func (h *Handler) UploadDocument(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	kind := extraction.DocumentKind(c.FormValue("document_kind"))
	slot := extraction.Slot(c.FormValue("slot"))

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if fh.Size > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	file := intake.Attachment{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
		UploadedAt:  time.Now().UTC(),
	}
	res, err := h.svc.UploadDocument(c.Request().Context(), id, file, kind, slot)
	if err != nil {
		return httpError(err)
	}
	if res == nil {
		// Stored but not yet extractable (back of card without a front).
		return c.JSON(http.StatusAccepted, map[string]string{"status": "stored"})
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Advance(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	step, err := h.svc.Advance(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if step.Errors != nil {
		// Validation refusals are flow control, not faults.
		return c.JSON(http.StatusUnprocessableEntity, step)
	}
	return c.JSON(http.StatusOK, step)
}

type jumpRequest struct {
	Step int `json:"step"`
}

func (h *Handler) JumpTo(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	var req jumpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	step, err := h.svc.JumpTo(c.Request().Context(), id, req.Step)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, step)
}

func (h *Handler) Review(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	vm, rec, err := h.svc.Review(c.Request().Context(), id, viewerRole(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"review":     vm,
		"submission": rec,
	})
}

func (h *Handler) Route(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	rec, errs, err := h.svc.Route(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if errs != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{"errors": errs})
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Submission(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.Submission(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if rec == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session has not been routed")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Dispatch(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.Dispatch(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) RetryRender(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.RetryRender(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Reset(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	if err := h.svc.ResetSubmission(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Finish(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	vm, err := h.svc.Finish(c.Request().Context(), id, viewerRole(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, vm)
}

func (h *Handler) Abandon(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Abandon(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type esignCallback struct {
	SubmissionID string `json:"submission_id"`
}

func (h *Handler) ESignCallback(c echo.Context) error {
	var req esignCallback
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	submissionID, err := uuid.Parse(req.SubmissionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid submission id")
	}
	rec, err := h.svc.CompleteESign(c.Request().Context(), submissionID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}
