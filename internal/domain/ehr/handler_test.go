package ehr

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medconnect/medconnect/internal/platform/auth"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")

// formFile builds a parsed multipart file header for service calls.
func formFile(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	w.Close()

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	return form.File["file"][0]
}

func newRequest(method, body string, p auth.Principal) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, "/", nil)
	} else {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req.WithContext(auth.WithPrincipal(context.Background(), p))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHandler_CreateRecord_JSON(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost,
		`{"record_type":"lab_result","title":"CBC","date":"2026-02-01","provider":"City Lab"}`, env.patient), rec)
	if err := h.CreateRecord(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	record := decode(t, rec)["record"].(map[string]interface{})
	if record["date"] != "2026-02-01" || record["record_type"] != "lab_result" || record["file_url"] != nil {
		t.Errorf("unexpected record %v", record)
	}
	if _, ok := record["file_key"]; ok {
		t.Error("file_key must not be serialized")
	}
}

func TestHandler_CreateRecord_Multipart(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	e := echo.New()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	w.WriteField("title", "Chest X-ray")
	w.WriteField("record_type", "imaging")
	part, _ := w.CreateFormFile("file", "xray.png")
	part.Write(pngBytes)
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req = req.WithContext(auth.WithPrincipal(context.Background(), env.patient))
	rec := httptest.NewRecorder()

	if err := h.CreateRecord(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	record := decode(t, rec)["record"].(map[string]interface{})
	if record["title"] != "Chest X-ray" || record["record_type"] != "imaging" {
		t.Errorf("form fields not bound: %v", record)
	}
	url, _ := record["file_url"].(string)
	if !strings.HasPrefix(url, "/api/files/medical-records/"+env.patient.ProfileID.String()+"/") {
		t.Errorf("unexpected file_url %q", url)
	}
	if env.blobs.Len() != 1 {
		t.Errorf("expected 1 blob, got %d", env.blobs.Len())
	}
}

func TestHandler_CreateRecord_BadJSON(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	c := echo.New().NewContext(newRequest(http.MethodPost, `{"title":`, env.patient), httptest.NewRecorder())

	err := h.CreateRecord(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_ListMedications_Empty(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(newRequest(http.MethodGet, "", env.patient), rec)

	if err := h.ListMedications(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"medications":[]`) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestHandler_CreateMedication_DateFormat(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(newRequest(http.MethodPost,
		`{"name":"Ondansetron","dosage":"8mg","frequency":"as needed","start_date":"2026-02-10","end_date":"2026-03-10","prescribed_by":"Dr. Lee"}`,
		env.patient), rec)

	if err := h.CreateMedication(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	med := decode(t, rec)["medication"].(map[string]interface{})
	if med["start_date"] != "2026-02-10" || med["end_date"] != "2026-03-10" || med["status"] != "active" {
		t.Errorf("unexpected medication %v", med)
	}
}

func TestHandler_Routes_PatientOnly(t *testing.T) {
	env := newTestEnv()
	e := echo.New()
	NewHandler(env.svc).RegisterRoutes(e.Group("/api"))

	researcher := auth.Principal{ProfileID: env.patient.ProfileID, Role: auth.RoleResearcher}
	req := newRequest(http.MethodGet, "", researcher)
	req.URL.Path = "/api/vital-signs"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for researcher, got %d", rec.Code)
	}
}
