package scheduling

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medconnect/medconnect/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	patient := api.Group("", auth.RequireRole(auth.RolePatient))
	patient.GET("/appointments", h.List)
	patient.POST("/appointments/create", h.Create)
	patient.PUT("/appointments/:id/update", h.Update)
	patient.DELETE("/appointments/:id/delete", h.Delete)

	researcher := api.Group("", auth.RequireRole(auth.RoleResearcher))
	researcher.GET("/studies/:id/appointments", h.ListForStudy)
	researcher.POST("/studies/:id/appointments/create", h.CreateForStudy)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) List(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Appointments(c.Request().Context(), p)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "appointments": items})
}

func (h *Handler) Create(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	a, err := h.svc.Create(c.Request().Context(), p, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success":     true,
		"message":     "Appointment created successfully",
		"appointment": a,
	})
}

func (h *Handler) Update(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	a, err := h.svc.Update(c.Request().Context(), p, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"message":     "Appointment updated successfully",
		"appointment": a,
	})
}

func (h *Handler) Delete(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Appointment deleted successfully"})
}

// -- Study Appointments --

func (h *Handler) ListForStudy(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.StudyAppointments(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*StudyAppointment{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "appointments": items})
}

func (h *Handler) CreateForStudy(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in StudyAppointmentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	a, err := h.svc.CreateStudyAppointment(c.Request().Context(), p, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success":     true,
		"message":     "Appointment created successfully",
		"appointment": a,
	})
}
