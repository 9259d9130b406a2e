package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/blobstore"
)

// ── Mock Repositories ──

type mockProfileRepo struct {
	data map[uuid.UUID]*Profile
}

func (m *mockProfileRepo) Create(_ context.Context, p *Profile) error {
	for _, existing := range m.data {
		if existing.Username == p.Username || strings.EqualFold(existing.Email, p.Email) {
			return apperr.Conflict("Profile already exists")
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.data[p.ID] = p
	return nil
}
func (m *mockProfileRepo) GetByID(_ context.Context, id uuid.UUID) (*Profile, error) {
	if p, ok := m.data[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, apperr.NotFound("Profile not found")
}
func (m *mockProfileRepo) GetByUsername(_ context.Context, username string) (*Profile, error) {
	for _, p := range m.data {
		if p.Username == username {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("Profile not found")
}
func (m *mockProfileRepo) GetByEmail(_ context.Context, email string) (*Profile, error) {
	for _, p := range m.data {
		if strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("Profile not found")
}
func (m *mockProfileRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := m.GetByUsername(ctx, username)
	return err == nil, nil
}
func (m *mockProfileRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := m.GetByEmail(ctx, email)
	return err == nil, nil
}
func (m *mockProfileRepo) Update(_ context.Context, p *Profile) error {
	if _, ok := m.data[p.ID]; !ok {
		return apperr.NotFound("Profile not found")
	}
	cp := *p
	m.data[p.ID] = &cp
	return nil
}
func (m *mockProfileRepo) SetPicture(_ context.Context, id uuid.UUID, key string) error {
	m.data[id].ProfilePicture = key
	return nil
}
func (m *mockProfileRepo) ExistsWithRole(_ context.Context, id uuid.UUID, role string) (bool, error) {
	p, ok := m.data[id]
	return ok && string(p.Role) == role, nil
}

type mockPatientRepo struct {
	data map[uuid.UUID]*PatientProfile
	last PatientSearch
}

func (m *mockPatientRepo) Create(_ context.Context, pp *PatientProfile) error {
	m.data[pp.ProfileID] = pp
	return nil
}
func (m *mockPatientRepo) Get(_ context.Context, id uuid.UUID) (*PatientProfile, error) {
	if pp, ok := m.data[id]; ok {
		cp := *pp
		return &cp, nil
	}
	return nil, apperr.NotFound("Patient profile not found")
}
func (m *mockPatientRepo) Update(_ context.Context, pp *PatientProfile) error {
	cp := *pp
	m.data[pp.ProfileID] = &cp
	return nil
}
func (m *mockPatientRepo) Search(_ context.Context, q PatientSearch) ([]*PatientProfile, error) {
	m.last = q
	var out []*PatientProfile
	for _, pp := range m.data {
		c := strings.ToLower(q.Condition)
		if c != "" && !strings.Contains(strings.ToLower(pp.CancerType+pp.MedicalConditions+pp.Allergies), c) {
			continue
		}
		out = append(out, pp)
	}
	return out, nil
}

type mockResearcherRepo struct {
	data map[uuid.UUID]*ResearcherProfile
}

func (m *mockResearcherRepo) Create(_ context.Context, rp *ResearcherProfile) error {
	m.data[rp.ProfileID] = rp
	return nil
}
func (m *mockResearcherRepo) Get(_ context.Context, id uuid.UUID) (*ResearcherProfile, error) {
	if rp, ok := m.data[id]; ok {
		cp := *rp
		return &cp, nil
	}
	return nil, apperr.NotFound("Researcher profile not found")
}
func (m *mockResearcherRepo) Update(_ context.Context, rp *ResearcherProfile) error {
	cp := *rp
	m.data[rp.ProfileID] = &cp
	return nil
}
func (m *mockResearcherRepo) Search(_ context.Context, q ResearcherSearch) ([]*ResearcherHit, error) {
	var out []*ResearcherHit
	for _, rp := range m.data {
		out = append(out, &ResearcherHit{ResearcherProfile: rp, FirstName: "Ada", LastName: "Lee", ActiveStudies: 2})
	}
	return out, nil
}

type directTx struct{}

func (directTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type testEnv struct {
	svc         *Service
	profiles    *mockProfileRepo
	patients    *mockPatientRepo
	researchers *mockResearcherRepo
	blobs       *blobstore.MemoryStore
}

func newTestEnv() *testEnv {
	env := &testEnv{
		profiles:    &mockProfileRepo{data: make(map[uuid.UUID]*Profile)},
		patients:    &mockPatientRepo{data: make(map[uuid.UUID]*PatientProfile)},
		researchers: &mockResearcherRepo{data: make(map[uuid.UUID]*ResearcherProfile)},
		blobs:       blobstore.NewMemoryStore(),
	}
	env.svc = NewService(env.profiles, env.patients, env.researchers, directTx{}, env.blobs, zerolog.Nop())
	return env
}

func validPatient() RegisterPatientInput {
	return RegisterPatientInput{
		accountInput: accountInput{
			Username: "sam", Email: "sam@example.com", Password: "s3cret-pass",
			FirstName: "Sam", LastName: "Rivera",
		},
		DateOfBirth: "1980-04-12",
		Gender:      "female",
		CancerType:  "Breast Cancer",
		PhoneNumber: "555-0101",
	}
}

func validResearcher() RegisterResearcherInput {
	return RegisterResearcherInput{
		accountInput: accountInput{
			Username: "dr_lee", Email: "lee@uni.edu", Password: "s3cret-pass",
			FirstName: "Ada", LastName: "Lee",
		},
		Title:          "Dr.",
		Institution:    "City University",
		Specialization: "Oncology",
		PhoneNumber:    "555-0199",
	}
}

// -- Registration --

func TestService_RegisterPatient(t *testing.T) {
	env := newTestEnv()
	p, err := env.svc.RegisterPatient(context.Background(), validPatient())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Role != auth.RolePatient || p.PasswordHash == "s3cret-pass" {
		t.Errorf("unexpected profile %+v", p)
	}
	if !auth.CheckPassword(p.PasswordHash, "s3cret-pass") {
		t.Error("stored hash does not match password")
	}
	pp := env.patients.data[p.ID]
	if pp == nil || pp.DateOfBirth.Format(DateLayout) != "1980-04-12" || pp.CancerType != "Breast Cancer" {
		t.Errorf("unexpected patient profile %+v", pp)
	}
}

func TestService_RegisterPatient_MissingField(t *testing.T) {
	env := newTestEnv()
	in := validPatient()
	in.DateOfBirth = " "
	_, err := env.svc.RegisterPatient(context.Background(), in)
	if msg, _ := apperr.Message(err); msg != "Date Of Birth is required" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestService_RegisterPatient_BadDate(t *testing.T) {
	env := newTestEnv()
	in := validPatient()
	in.DateOfBirth = "12/04/1980"
	_, err := env.svc.RegisterPatient(context.Background(), in)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_Register_Duplicates(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	if _, err := env.svc.RegisterPatient(ctx, validPatient()); err != nil {
		t.Fatal(err)
	}

	sameUser := validResearcher()
	sameUser.Username = "sam"
	_, err := env.svc.RegisterResearcher(ctx, sameUser)
	if msg, _ := apperr.Message(err); msg != "Username already exists" {
		t.Errorf("unexpected error %v", err)
	}

	sameEmail := validResearcher()
	sameEmail.Email = "SAM@example.com"
	_, err = env.svc.RegisterResearcher(ctx, sameEmail)
	if msg, _ := apperr.Message(err); msg != "Email already exists" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestService_RegisterResearcher_MissingInstitution(t *testing.T) {
	env := newTestEnv()
	in := validResearcher()
	in.Institution = ""
	_, err := env.svc.RegisterResearcher(context.Background(), in)
	if msg, _ := apperr.Message(err); msg != "Institution is required" {
		t.Fatalf("unexpected error %v", err)
	}
}

// -- Authentication --

func TestService_Authenticate(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	registered, err := env.svc.RegisterPatient(ctx, validPatient())
	if err != nil {
		t.Fatal(err)
	}

	for _, login := range []string{"sam", "sam@example.com"} {
		p, err := env.svc.Authenticate(ctx, login, "s3cret-pass")
		if err != nil {
			t.Fatalf("Authenticate(%q): %v", login, err)
		}
		if p.ID != registered.ID {
			t.Errorf("Authenticate(%q) returned another profile", login)
		}
	}

	for _, tc := range []struct{ login, password string }{
		{"sam", "wrong"},
		{"nobody", "s3cret-pass"},
		{"", "s3cret-pass"},
	} {
		_, err := env.svc.Authenticate(ctx, tc.login, tc.password)
		if !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("Authenticate(%q, %q): expected unauthorized, got %v", tc.login, tc.password, err)
		}
	}
}

func TestService_SessionUser_IncludesRoleSummary(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	p, _ := env.svc.RegisterResearcher(ctx, validResearcher())

	u, err := env.svc.SessionUser(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if u.ResearcherProfile == nil || u.ResearcherProfile.Institution != "City University" || u.PatientProfile != nil {
		t.Errorf("unexpected session user %+v", u)
	}
}

// -- Profile --

func TestService_Profile_BMIAndCompletion(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	p, _ := env.svc.RegisterPatient(ctx, validPatient())

	v, err := env.svc.Profile(ctx, p.Principal())
	if err != nil {
		t.Fatal(err)
	}
	// first/last name, dob, gender, cancer type, phone: 6 of 21.
	if v.ProfileCompletion != 29 {
		t.Errorf("expected completion 29, got %d", v.ProfileCompletion)
	}
	if v.PatientProfile.BMI != nil || v.ProfilePicture != nil {
		t.Errorf("expected nil bmi and picture, got %v %v", v.PatientProfile.BMI, v.ProfilePicture)
	}

	height, weight := 170.0, 65.0
	if err := env.svc.UpdateProfile(ctx, p.Principal(), UpdateProfileInput{Height: &height, Weight: &weight}); err != nil {
		t.Fatal(err)
	}
	v, _ = env.svc.Profile(ctx, p.Principal())
	if v.PatientProfile.BMI == nil || *v.PatientProfile.BMI != 22.49 {
		t.Errorf("expected bmi 22.49, got %v", v.PatientProfile.BMI)
	}
	// height, weight and bmi now count: 9 of 21.
	if v.ProfileCompletion != 43 {
		t.Errorf("expected completion 43, got %d", v.ProfileCompletion)
	}
}

func TestService_Profile_ResearcherCompletion(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	p, _ := env.svc.RegisterResearcher(ctx, validResearcher())

	v, err := env.svc.Profile(ctx, p.Principal())
	if err != nil {
		t.Fatal(err)
	}
	// Only the eight shared fields count for researchers; names are 2 of them.
	if v.ProfileCompletion != 25 {
		t.Errorf("expected completion 25, got %d", v.ProfileCompletion)
	}
	if v.ResearcherProfile == nil || v.PatientProfile != nil {
		t.Errorf("unexpected role blocks %+v", v)
	}
}

func TestService_UpdateProfile_Partial(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	p, _ := env.svc.RegisterResearcher(ctx, validResearcher())

	bio, years := "Immunotherapy lead", 12
	blood := "O+"
	err := env.svc.UpdateProfile(ctx, p.Principal(), UpdateProfileInput{
		Bio: &bio, YearsOfExperience: &years, BloodType: &blood,
	})
	if err != nil {
		t.Fatal(err)
	}
	got := env.profiles.data[p.ID]
	if got.Bio != bio || got.FirstName != "Ada" {
		t.Errorf("unexpected profile %+v", got)
	}
	if env.researchers.data[p.ID].YearsOfExperience != 12 {
		t.Errorf("years_of_experience not updated")
	}
}

func TestService_UpdateProfile_NegativeValues(t *testing.T) {
	env := newTestEnv()
	p, _ := env.svc.RegisterPatient(context.Background(), validPatient())
	h := -3.0
	err := env.svc.UpdateProfile(context.Background(), p.Principal(), UpdateProfileInput{Height: &h})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_PatientExists(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	patient, _ := env.svc.RegisterPatient(ctx, validPatient())
	researcher, _ := env.svc.RegisterResearcher(ctx, validResearcher())

	if ok, _ := env.svc.PatientExists(ctx, patient.ID); !ok {
		t.Error("expected patient to exist")
	}
	if ok, _ := env.svc.PatientExists(ctx, researcher.ID); ok {
		t.Error("researcher reported as patient")
	}
	if ok, _ := env.svc.PatientExists(ctx, uuid.New()); ok {
		t.Error("unknown id reported as patient")
	}
}

// -- Search --

func TestParseAgeRange(t *testing.T) {
	tests := []struct {
		in       string
		min, max int
		ok       bool
	}{
		{"30-50", 30, 50, true},
		{" 18 - 65 ", 18, 65, true},
		{"50-30", 0, 0, false},
		{"abc", 0, 0, false},
		{"", 0, 0, false},
		{"-5-10", 0, 0, false},
	}
	for _, tt := range tests {
		lo, hi, ok := ParseAgeRange(tt.in)
		if ok != tt.ok || lo != tt.min || hi != tt.max {
			t.Errorf("ParseAgeRange(%q) = %d, %d, %v", tt.in, lo, hi, ok)
		}
	}
}

func TestService_SearchPatients_Scores(t *testing.T) {
	env := newTestEnv()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	env.svc.now = func() time.Time { return fixed }

	a, b := uuid.New(), uuid.New()
	env.patients.data[a] = &PatientProfile{ProfileID: a, CancerType: "Lung Cancer", MedicalConditions: "lung fibrosis",
		DateOfBirth: time.Date(1976, 1, 1, 0, 0, 0, 0, time.UTC)}
	env.patients.data[b] = &PatientProfile{ProfileID: b, CancerType: "Melanoma", Allergies: "lung-irritant dust",
		DateOfBirth: time.Date(1990, 6, 1, 0, 0, 0, 0, time.UTC)}

	items, err := env.svc.SearchPatients(context.Background(), "lung", "", "30-60")
	if err != nil {
		t.Fatal(err)
	}
	scores := map[uuid.UUID]int{}
	for _, m := range items {
		scores[m.ID] = m.MatchScore
	}
	if scores[a] != 100 || scores[b] != 85 {
		t.Errorf("unexpected scores %v", scores)
	}
	q := env.patients.last
	if q.BornAfter == nil || q.BornBefore == nil || q.Limit != searchLimit {
		t.Fatalf("age range not translated: %+v", q)
	}
	if !q.BornBefore.Equal(fixed.AddDate(0, 0, -30*365)) {
		t.Errorf("unexpected born-before bound %v", q.BornBefore)
	}
}

func TestService_SearchPatients_IgnoresBadAgeRange(t *testing.T) {
	env := newTestEnv()
	if _, err := env.svc.SearchPatients(context.Background(), "", "", "old"); err != nil {
		t.Fatal(err)
	}
	if env.patients.last.BornAfter != nil {
		t.Error("malformed age range applied")
	}
}

func TestService_SearchResearchers(t *testing.T) {
	env := newTestEnv()
	p, _ := env.svc.RegisterResearcher(context.Background(), validResearcher())

	items, err := env.svc.SearchResearchers(context.Background(), "onco", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != p.ID || items[0].MatchScore != 100 || items[0].Location != "City University" {
		t.Errorf("unexpected result %+v", items)
	}
}
