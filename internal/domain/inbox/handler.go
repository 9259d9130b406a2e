package inbox

import (
	"net/http"

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
	api.GET("/contact-requests", h.ListContactRequests)

	researcher := api.Group("", auth.RequireRole(auth.RoleResearcher))
	researcher.POST("/contact-request/:patient_id", h.SendContactRequest)

	patient := api.Group("", auth.RequireRole(auth.RolePatient))
	patient.PUT("/contact-request/:id/respond", h.RespondContactRequest)
	patient.GET("/notifications", h.ListNotifications)
	patient.POST("/notifications/read-all", h.MarkAllRead)
	patient.POST("/notifications/:id/read", h.MarkRead)
}

type sendContactRequest struct {
	Message string `json:"message"`
}

func (h *Handler) SendContactRequest(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req sendContactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	cr, err := h.svc.SendContactRequest(c.Request().Context(), p, patientID, req.Message)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success":         true,
		"message":         "Contact request sent successfully",
		"contact_request": cr,
	})
}

func (h *Handler) ListContactRequests(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListContactRequests(c.Request().Context(), p)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*ContactRequest{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "contact_requests": items})
}

type respondRequest struct {
	Response string `json:"response"`
}

func (h *Handler) RespondContactRequest(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req respondRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	cr, err := h.svc.RespondContactRequest(c.Request().Context(), p, id, req.Response)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":         true,
		"message":         "Contact request " + req.Response + "ed successfully",
		"contact_request": cr,
	})
}

func (h *Handler) ListNotifications(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	unread := c.QueryParam("unread") == "true"
	items, total, err := h.svc.ListNotifications(c.Request().Context(), p, unread, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Notification{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":       true,
		"notifications": items,
		"pagination":    pg.Meta(total),
	})
}

func (h *Handler) MarkRead(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.MarkNotificationRead(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	n, err := h.svc.MarkAllNotificationsRead(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "updated": n})
}
