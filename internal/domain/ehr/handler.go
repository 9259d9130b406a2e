package ehr

import (
	"mime/multipart"
	"net/http"
	"strings"

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
	patient.GET("/medical-records", h.ListRecords)
	patient.POST("/medical-records/create", h.CreateRecord)
	patient.DELETE("/medical-records/:id/delete", h.DeleteRecord)
	patient.GET("/vital-signs", h.ListVitalSigns)
	patient.POST("/vital-signs/create", h.CreateVitalSigns)
	patient.GET("/medications", h.ListMedications)
	patient.POST("/medications/create", h.CreateMedication)
	patient.GET("/immunizations", h.ListImmunizations)
	patient.POST("/immunizations/create", h.CreateImmunization)
	patient.GET("/allergies", h.ListAllergies)
	patient.POST("/allergies/create", h.CreateAllergy)
}

// -- Medical Records --

func (h *Handler) ListRecords(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Records(c.Request().Context(), p)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*MedicalRecord{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "medical_records": items})
}

// CreateRecord accepts JSON or a multipart form with an optional "file" part.
func (h *Handler) CreateRecord(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	var in RecordInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	var file *multipart.FileHeader
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if fh, err := c.FormFile("file"); err == nil {
			file = fh
		}
	}

	rec, err := h.svc.CreateRecord(c.Request().Context(), p, in, file)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "Medical record created successfully",
		"record":  rec,
	})
}

func (h *Handler) DeleteRecord(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteRecord(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Medical record deleted successfully"})
}

// -- Vital Signs --

func (h *Handler) ListVitalSigns(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	items, err := h.svc.VitalSigns(c.Request().Context(), p)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*VitalSigns{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "vital_signs": items})
}

func (h *Handler) CreateVitalSigns(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	var in VitalSignsInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	v, err := h.svc.RecordVitalSigns(c.Request().Context(), p, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success":     true,
		"message":     "Vital signs recorded successfully",
		"vital_signs": v,
	})
}

// -- Medications --

func (h *Handler) ListMedications(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Medications(c.Request().Context(), p)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Medication{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "medications": items})
}

func (h *Handler) CreateMedication(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	var in MedicationInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	m, err := h.svc.AddMedication(c.Request().Context(), p, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success":    true,
		"message":    "Medication added successfully",
		"medication": m,
	})
}

// -- Immunizations --

func (h *Handler) ListImmunizations(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Immunizations(c.Request().Context(), p)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Immunization{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "immunizations": items})
}

func (h *Handler) CreateImmunization(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	var in ImmunizationInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	im, err := h.svc.AddImmunization(c.Request().Context(), p, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success":      true,
		"message":      "Immunization added successfully",
		"immunization": im,
	})
}

// -- Allergies --

func (h *Handler) ListAllergies(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Allergies(c.Request().Context(), p)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Allergy{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "allergies": items})
}

func (h *Handler) CreateAllergy(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	var in AllergyInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	a, err := h.svc.AddAllergy(c.Request().Context(), p, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "Allergy added successfully",
		"allergy": a,
	})
}
