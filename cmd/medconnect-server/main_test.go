package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"

	"github.com/medconnect/medconnect/internal/config"
	"github.com/medconnect/medconnect/internal/domain/ehr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/blobstore"
	"github.com/medconnect/medconnect/internal/platform/metrics"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() *config.Config {
	return &config.Config{
		Env:            "test",
		LogLevel:       "info",
		SessionSecret:  testSecret,
		SessionTTL:     time.Hour,
		SessionCookie:  "medconnect_session",
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		BodyLimit:      "1M",
		BlobBackend:    config.BlobBackendMemory,
	}
}

func newTestServer(t *testing.T) (http.Handler, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mock.Close)

	revocations := auth.NewMemoryRevocationStore(time.Minute)
	t.Cleanup(revocations.Close)

	e := newServer(testConfig(), zerolog.Nop(), deps{
		pool:        mock,
		blobs:       blobstore.NewMemoryStore(),
		revocations: revocations,
		registry:    metrics.NewRegistry(),
	})
	return e, mock
}

func serve(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	h, _ := newTestServer(t)
	rec := serve(h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on every response")
	}
}

func TestServer_ProtectedRoutesNeedSession(t *testing.T) {
	h, _ := newTestServer(t)
	for _, path := range []string{"/api/user", "/api/appointments", "/api/medical-records", "/api/user/communities"} {
		if rec := serve(h, http.MethodGet, path, ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestServer_PublicCommunityList(t *testing.T) {
	h, mock := newTestServer(t)
	mock.ExpectQuery("FROM community c ORDER BY c.created_at DESC").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description", "category", "is_private", "tags",
			"created_by", "created_at", "updated_at", "member_count", "last_activity", "moderators"}))

	rec := serve(h, http.MethodGet, "/api/communities", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"communities":[]`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestServer_SessionReachesPatientRoutes(t *testing.T) {
	h, mock := newTestServer(t)
	patient := auth.Principal{ProfileID: uuid.New(), Role: auth.RolePatient, Username: "pat"}
	token, _, err := auth.NewSessionIssuer([]byte(testSecret), time.Hour).Issue(patient)
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectQuery("FROM appointment a WHERE a.patient_id = \\$1").
		WithArgs(patient.ProfileID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "patient_id", "study_id", "doctor_name", "doctor_specialization",
			"appointment_date", "address", "reason", "notes", "status", "created_at", "updated_at"}))

	rec := serve(h, http.MethodGet, "/api/appointments", token)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"appointments":[]`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	// researchers only
	if rec := serve(h, http.MethodGet, "/api/studies/"+uuid.NewString()+"/appointments", token); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for patient, got %d", rec.Code)
	}
}

func TestServer_MedicalRecordFilesOwnerOnly(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()
	revocations := auth.NewMemoryRevocationStore(time.Minute)
	defer revocations.Close()
	blobs := blobstore.NewMemoryStore()
	h := newServer(testConfig(), zerolog.Nop(), deps{pool: mock, blobs: blobs, revocations: revocations, registry: metrics.NewRegistry()})

	issuer := auth.NewSessionIssuer([]byte(testSecret), time.Hour)
	owner := auth.Principal{ProfileID: uuid.New(), Role: auth.RolePatient, Username: "owner"}
	other := auth.Principal{ProfileID: uuid.New(), Role: auth.RolePatient, Username: "other"}
	ownerToken, _, _ := issuer.Issue(owner)
	otherToken, _, _ := issuer.Issue(other)

	obj, err := blobs.Put(context.Background(), ehr.RecordPrefix+"/"+owner.ProfileID.String(), "scan.txt", "text/plain", strings.NewReader("results"))
	if err != nil {
		t.Fatal(err)
	}

	if rec := serve(h, http.MethodGet, blobstore.URL(obj.Key), ownerToken); rec.Code != http.StatusOK || rec.Body.String() != "results" {
		t.Errorf("owner: unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(h, http.MethodGet, blobstore.URL(obj.Key), otherToken); rec.Code != http.StatusNotFound {
		t.Errorf("other patient: expected 404, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodGet, blobstore.URL(obj.Key), ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: expected 401, got %d", rec.Code)
	}
}

func TestServer_MetricsExposeRequests(t *testing.T) {
	h, _ := newTestServer(t)
	serve(h, http.MethodGet, "/health", "")
	rec := serve(h, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), "medconnect_http_requests_total") {
		t.Error("expected http request counter in /metrics output")
	}
}

func TestNewLogger_Level(t *testing.T) {
	cfg := testConfig()
	cfg.LogLevel = "debug"
	if got := newLogger(cfg).GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("expected debug, got %s", got)
	}
	cfg.LogLevel = "chatty"
	if got := newLogger(cfg).GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("expected info fallback, got %s", got)
	}
}

func TestNewBlobStore_Memory(t *testing.T) {
	store, err := newBlobStore(context.Background(), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*blobstore.MemoryStore); !ok {
		t.Errorf("expected memory store, got %T", store)
	}
}

func TestNewRevocationStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	store, closeFn, err := newRevocationStore(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*auth.MemoryRevocationStore); !ok {
		t.Errorf("expected memory store, got %T", store)
	}
	closeFn()

	mr := miniredis.RunT(t)
	cfg.RedisURL = "redis://" + mr.Addr()
	store, closeFn, err = newRevocationStore(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, ok := store.(*auth.RedisRevocationStore); !ok {
		t.Errorf("expected redis store, got %T", store)
	}
	if err := store.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if revoked, _ := store.IsRevoked(ctx, "jti-1"); !revoked {
		t.Error("expected jti-1 to be revoked")
	}

	cfg.RedisURL = "not a url"
	if _, _, err := newRevocationStore(ctx, cfg); err == nil {
		t.Error("expected error for malformed REDIS_URL")
	}
}
