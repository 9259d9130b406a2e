package research

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/studies", h.ListStudies)
	api.GET("/studies/:id", h.GetStudy)
	api.GET("/user/studies", h.UserStudies)
	// Role is checked by the service after the action is validated.
	api.POST("/participations/:id/status", h.UpdateParticipationStatus)

	patient := api.Group("", auth.RequireRole(auth.RolePatient))
	patient.POST("/studies/:id/apply", h.Apply)

	researcher := api.Group("", auth.RequireRole(auth.RoleResearcher))
	researcher.POST("/studies/create", h.CreateStudy)
	researcher.GET("/studies/:id/applicants", h.Applicants)
	researcher.GET("/studies/:id/documents", h.ListDocuments)
	researcher.POST("/studies/:id/documents", h.UploadDocument)
	researcher.DELETE("/documents/:id", h.DeleteDocument)
}

func studyID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Studies --

func (h *Handler) CreateStudy(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	var in CreateStudyInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	st, err := h.svc.CreateStudy(c.Request().Context(), p, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "Study created successfully",
		"study":   st,
	})
}

func (h *Handler) ListStudies(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := StudyFilter{
		Status: StudyStatus(c.QueryParam("status")),
		Phase:  c.QueryParam("phase"),
		Query:  strings.TrimSpace(c.QueryParam("q")),
	}
	items, total, err := h.svc.ListStudies(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Study{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"studies":    items,
		"pagination": pg.Meta(total),
	})
}

func (h *Handler) GetStudy(c echo.Context) error {
	id, err := studyID(c)
	if err != nil {
		return err
	}
	st, err := h.svc.GetStudy(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "study": st})
}

// UserStudies lists the caller's own studies for researchers and the
// studies applied to for patients.
func (h *Handler) UserStudies(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if p.Role.IsResearcher() {
		items, err := h.svc.OwnedStudies(ctx, p)
		if err != nil {
			return err
		}
		if items == nil {
			items = []*OwnedStudySummary{}
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true, "studies": items})
	}
	items, err := h.svc.PatientStudies(ctx, p)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*PatientStudy{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "studies": items})
}

// -- Participations --

func (h *Handler) Apply(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := studyID(c)
	if err != nil {
		return err
	}
	part, err := h.svc.Apply(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success":       true,
		"message":       "Application submitted successfully",
		"participation": part,
	})
}

func (h *Handler) Applicants(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := studyID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Applicants(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Applicant{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "applicants": items})
}

type statusRequest struct {
	Action string          `json:"action"`
	Notes  json.RawMessage `json:"notes"`
}

// notes returns nil when the field was absent. A null value clears the notes.
func (r statusRequest) notes() (*string, error) {
	if len(r.Notes) == 0 {
		return nil, nil
	}
	var s *string
	if err := json.Unmarshal(r.Notes, &s); err != nil {
		return nil, err
	}
	if s == nil {
		empty := ""
		return &empty, nil
	}
	return s, nil
}

func (h *Handler) UpdateParticipationStatus(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid participation id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	notes, err := req.notes()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "notes must be a string")
	}

	part, err := h.svc.Transition(c.Request().Context(), p, id, TransitionInput{Action: req.Action, Notes: notes})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Status updated",
		"status":  part.Status,
	})
}

// -- Documents --

func (h *Handler) ListDocuments(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := studyID(c)
	if err != nil {
		return err
	}
	docs, err := h.svc.Documents(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []*Document{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "documents": docs})
}

func (h *Handler) UploadDocument(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := studyID(c)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return echo.NewHTTPError(http.StatusBadRequest, "Use multipart/form-data for file upload")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		fh = nil
	}

	doc, err := h.svc.UploadDocument(c.Request().Context(), p, id, c.FormValue("name"), c.FormValue("doc_type"), fh)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "document": doc})
}

func (h *Handler) DeleteDocument(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteDocument(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Document deleted"})
}
