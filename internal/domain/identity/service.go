package identity

import (
	"context"
	"errors"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/blobstore"
)

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	profiles    ProfileRepository
	patients    PatientProfileRepository
	researchers ResearcherProfileRepository
	tx          TxRunner
	blobs       blobstore.BlobStore
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(
	profiles ProfileRepository,
	patients PatientProfileRepository,
	researchers ResearcherProfileRepository,
	tx TxRunner,
	blobs blobstore.BlobStore,
	logger zerolog.Logger,
) *Service {
	return &Service{
		profiles:    profiles,
		patients:    patients,
		researchers: researchers,
		tx:          tx,
		blobs:       blobs,
		logger:      logger.With().Str("component", "identity").Logger(),
		now:         time.Now,
	}
}

// -- Registration --

type accountInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type RegisterPatientInput struct {
	accountInput
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
	CancerType  string `json:"cancer_type"`
	PhoneNumber string `json:"phone_number"`
}

type RegisterResearcherInput struct {
	accountInput
	Title          string `json:"title"`
	Institution    string `json:"institution"`
	Specialization string `json:"specialization"`
	PhoneNumber    string `json:"phone_number"`
}

type field struct {
	name  string
	value string
}

// requireFields reports the first empty field as "<Field Name> is required".
func requireFields(fields ...field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return apperr.Validation("%s is required", fieldLabel(f.name))
		}
	}
	return nil
}

// fieldLabel turns date_of_birth into "Date Of Birth".
func fieldLabel(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func (in accountInput) fields() []field {
	return []field{
		{"username", in.Username}, {"email", in.Email}, {"password", in.Password},
		{"first_name", in.FirstName}, {"last_name", in.LastName},
	}
}

func (s *Service) checkAvailable(ctx context.Context, username, email string) error {
	taken, err := s.profiles.UsernameExists(ctx, username)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Validation("Username already exists")
	}
	taken, err = s.profiles.EmailExists(ctx, email)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Validation("Email already exists")
	}
	return nil
}

func (s *Service) newProfile(in accountInput, role auth.Role) (*Profile, error) {
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Username:     strings.TrimSpace(in.Username),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
		Role:         role,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
	}, nil
}

// createAccount inserts the profile and its role block in one transaction.
// A unique violation raced past checkAvailable surfaces as a validation error.
func (s *Service) createAccount(ctx context.Context, p *Profile, createRole func(ctx context.Context) error) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.profiles.Create(ctx, p); err != nil {
			return err
		}
		return createRole(ctx)
	})
	if errors.Is(err, apperr.ErrConflict) {
		return apperr.Validation("Username or email already exists")
	}
	if err != nil {
		return err
	}
	s.logger.Info().Str("profile_id", p.ID.String()).Str("role", string(p.Role)).Msg("account registered")
	return nil
}

func (s *Service) RegisterPatient(ctx context.Context, in RegisterPatientInput) (*Profile, error) {
	fields := append(in.fields(),
		field{"date_of_birth", in.DateOfBirth}, field{"gender", in.Gender},
		field{"cancer_type", in.CancerType}, field{"phone_number", in.PhoneNumber})
	if err := requireFields(fields...); err != nil {
		return nil, err
	}
	dob, err := time.Parse(DateLayout, strings.TrimSpace(in.DateOfBirth))
	if err != nil {
		return nil, apperr.Validation("Invalid date_of_birth, expected YYYY-MM-DD")
	}
	if err := s.checkAvailable(ctx, in.Username, in.Email); err != nil {
		return nil, err
	}

	p, err := s.newProfile(in.accountInput, auth.RolePatient)
	if err != nil {
		return nil, err
	}
	err = s.createAccount(ctx, p, func(ctx context.Context) error {
		return s.patients.Create(ctx, &PatientProfile{
			ProfileID:   p.ID,
			DateOfBirth: dob,
			Gender:      strings.TrimSpace(in.Gender),
			CancerType:  strings.TrimSpace(in.CancerType),
			PhoneNumber: strings.TrimSpace(in.PhoneNumber),
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) RegisterResearcher(ctx context.Context, in RegisterResearcherInput) (*Profile, error) {
	fields := append(in.fields(),
		field{"title", in.Title}, field{"institution", in.Institution},
		field{"specialization", in.Specialization}, field{"phone_number", in.PhoneNumber})
	if err := requireFields(fields...); err != nil {
		return nil, err
	}
	if err := s.checkAvailable(ctx, in.Username, in.Email); err != nil {
		return nil, err
	}

	p, err := s.newProfile(in.accountInput, auth.RoleResearcher)
	if err != nil {
		return nil, err
	}
	err = s.createAccount(ctx, p, func(ctx context.Context) error {
		return s.researchers.Create(ctx, &ResearcherProfile{
			ProfileID:      p.ID,
			Title:          strings.TrimSpace(in.Title),
			Institution:    strings.TrimSpace(in.Institution),
			Specialization: strings.TrimSpace(in.Specialization),
			PhoneNumber:    strings.TrimSpace(in.PhoneNumber),
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// -- Authentication --

var errBadCredentials = apperr.Unauthorized("Invalid username/email or password")

// Authenticate resolves usernameOrEmail as a username first, then as an email.
func (s *Service) Authenticate(ctx context.Context, usernameOrEmail, password string) (*Profile, error) {
	login := strings.TrimSpace(usernameOrEmail)
	if login == "" || password == "" {
		return nil, errBadCredentials
	}
	p, err := s.profiles.GetByUsername(ctx, login)
	if errors.Is(err, apperr.ErrNotFound) {
		p, err = s.profiles.GetByEmail(ctx, login)
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(p.PasswordHash, password) {
		s.logger.Warn().Str("profile_id", p.ID.String()).Msg("failed login")
		return nil, errBadCredentials
	}
	return p, nil
}

// SessionUser is the login view: the account plus a summary of its role block.
func (s *Service) SessionUser(ctx context.Context, p *Profile) (*User, error) {
	u := newUser(p)
	switch p.Role {
	case auth.RolePatient:
		pp, err := s.patients.Get(ctx, p.ID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		if pp != nil {
			u.PatientProfile = &PatientSummary{
				DateOfBirth: pp.DateOfBirth.Format(DateLayout),
				Gender:      pp.Gender,
				CancerType:  pp.CancerType,
				PhoneNumber: pp.PhoneNumber,
			}
		}
	case auth.RoleResearcher:
		rp, err := s.researchers.Get(ctx, p.ID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		if rp != nil {
			u.ResearcherProfile = &ResearcherSummary{
				Title:          rp.Title,
				Institution:    rp.Institution,
				Specialization: rp.Specialization,
				PhoneNumber:    rp.PhoneNumber,
			}
		}
	}
	return u, nil
}

func (s *Service) Me(ctx context.Context, principal auth.Principal) (*User, error) {
	p, err := s.profiles.GetByID(ctx, principal.ProfileID)
	if err != nil {
		return nil, err
	}
	return newUser(p), nil
}

// -- Profile --

func (s *Service) Profile(ctx context.Context, principal auth.Principal) (*ProfileView, error) {
	p, err := s.profiles.GetByID(ctx, principal.ProfileID)
	if err != nil {
		return nil, err
	}
	var (
		pp *PatientProfile
		rp *ResearcherProfile
	)
	switch p.Role {
	case auth.RolePatient:
		pp, err = s.patients.Get(ctx, p.ID)
	case auth.RoleResearcher:
		rp, err = s.researchers.Get(ctx, p.ID)
	}
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	return newProfileView(p, pp, rp), nil
}

// UpdateProfileInput is a partial update. Nil fields are left unchanged and
// fields of the other role are ignored.
type UpdateProfileInput struct {
	FirstName                    *string `json:"first_name"`
	LastName                     *string `json:"last_name"`
	Bio                          *string `json:"bio"`
	Address                      *string `json:"address"`
	EmergencyContactName         *string `json:"emergency_contact_name"`
	EmergencyContactPhone        *string `json:"emergency_contact_phone"`
	EmergencyContactRelationship *string `json:"emergency_contact_relationship"`

	BloodType         *string  `json:"blood_type"`
	Height            *float64 `json:"height"`
	Weight            *float64 `json:"weight"`
	Allergies         *string  `json:"allergies"`
	MedicalConditions *string  `json:"medical_conditions"`
	FamilyHistory     *string  `json:"family_history"`
	InsuranceProvider *string  `json:"insurance_provider"`
	InsuranceNumber   *string  `json:"insurance_number"`

	LicenseNumber     *string `json:"license_number"`
	YearsOfExperience *int    `json:"years_of_experience"`
	Education         *string `json:"education"`
	Certifications    *string `json:"certifications"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (in UpdateProfileInput) validate() error {
	if in.Height != nil && *in.Height < 0 {
		return apperr.Validation("height must not be negative")
	}
	if in.Weight != nil && *in.Weight < 0 {
		return apperr.Validation("weight must not be negative")
	}
	if in.YearsOfExperience != nil && *in.YearsOfExperience < 0 {
		return apperr.Validation("years_of_experience must not be negative")
	}
	return nil
}

func (s *Service) UpdateProfile(ctx context.Context, principal auth.Principal, in UpdateProfileInput) error {
	if err := in.validate(); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.profiles.GetByID(ctx, principal.ProfileID)
		if err != nil {
			return err
		}
		set(&p.FirstName, in.FirstName)
		set(&p.LastName, in.LastName)
		set(&p.Bio, in.Bio)
		set(&p.Address, in.Address)
		set(&p.EmergencyContactName, in.EmergencyContactName)
		set(&p.EmergencyContactPhone, in.EmergencyContactPhone)
		set(&p.EmergencyContactRelationship, in.EmergencyContactRelationship)
		if err := s.profiles.Update(ctx, p); err != nil {
			return err
		}

		switch p.Role {
		case auth.RolePatient:
			pp, err := s.patients.Get(ctx, p.ID)
			if errors.Is(err, apperr.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			set(&pp.BloodType, in.BloodType)
			if in.Height != nil {
				pp.Height = in.Height
			}
			if in.Weight != nil {
				pp.Weight = in.Weight
			}
			set(&pp.Allergies, in.Allergies)
			set(&pp.MedicalConditions, in.MedicalConditions)
			set(&pp.FamilyHistory, in.FamilyHistory)
			set(&pp.InsuranceProvider, in.InsuranceProvider)
			set(&pp.InsuranceNumber, in.InsuranceNumber)
			return s.patients.Update(ctx, pp)
		case auth.RoleResearcher:
			rp, err := s.researchers.Get(ctx, p.ID)
			if errors.Is(err, apperr.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			set(&rp.LicenseNumber, in.LicenseNumber)
			set(&rp.YearsOfExperience, in.YearsOfExperience)
			set(&rp.Education, in.Education)
			set(&rp.Certifications, in.Certifications)
			return s.researchers.Update(ctx, rp)
		}
		return nil
	})
}

// PicturePrefix scopes profile pictures by profile id.
const PicturePrefix = "profile-pictures"

// UploadPicture stores an image as the profile picture, replaces the
// previous one and returns the new URL.
func (s *Service) UploadPicture(ctx context.Context, principal auth.Principal, fh *multipart.FileHeader) (string, error) {
	if fh == nil {
		return "", apperr.Validation("No profile picture provided")
	}
	p, err := s.profiles.GetByID(ctx, principal.ProfileID)
	if err != nil {
		return "", err
	}
	obj, err := blobstore.PutFormFile(ctx, s.blobs, PicturePrefix+"/"+p.ID.String(), fh)
	if err != nil {
		return "", blobstore.UploadError(err)
	}
	if !strings.HasPrefix(obj.ContentType, "image/") {
		s.dropBlob(ctx, obj.Key)
		return "", apperr.Validation("Profile picture must be an image")
	}
	if err := s.profiles.SetPicture(ctx, p.ID, obj.Key); err != nil {
		s.dropBlob(ctx, obj.Key)
		return "", err
	}
	if p.ProfilePicture != "" {
		s.dropBlob(ctx, p.ProfilePicture)
	}
	return blobstore.URL(obj.Key), nil
}

func (s *Service) dropBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Warn().Err(err).Str("key", key).Msg("profile picture blob not removed")
	}
}

// -- Directory --

// PatientExists reports whether id is a patient account.
func (s *Service) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.profiles.ExistsWithRole(ctx, id, string(auth.RolePatient))
}

// -- Search --

// ParseAgeRange reads "min-max" in years. ok is false for anything else.
func ParseAgeRange(s string) (minAge, maxAge int, ok bool) {
	lo, hi, found := strings.Cut(strings.TrimSpace(s), "-")
	if !found {
		return 0, 0, false
	}
	minAge, err1 := strconv.Atoi(strings.TrimSpace(lo))
	maxAge, err2 := strconv.Atoi(strings.TrimSpace(hi))
	if err1 != nil || err2 != nil || minAge < 0 || maxAge < minAge {
		return 0, 0, false
	}
	return minAge, maxAge, true
}

// SearchPatients filters patients by condition, gender and an optional
// "min-max" age range. A malformed age range is ignored.
func (s *Service) SearchPatients(ctx context.Context, condition, gender, ageRange string) ([]*PatientMatch, error) {
	now := s.now()
	q := PatientSearch{
		Condition: strings.TrimSpace(condition),
		Gender:    strings.TrimSpace(gender),
		Limit:     searchLimit,
	}
	if minAge, maxAge, ok := ParseAgeRange(ageRange); ok {
		today := now.UTC().Truncate(24 * time.Hour)
		after := today.AddDate(0, 0, -maxAge*365)
		before := today.AddDate(0, 0, -minAge*365)
		q.BornAfter, q.BornBefore = &after, &before
	}

	rows, err := s.patients.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*PatientMatch, 0, len(rows))
	for _, pp := range rows {
		out = append(out, &PatientMatch{
			ID:                pp.ProfileID,
			Age:               pp.Age(now),
			Gender:            pp.Gender,
			Condition:         pp.CancerType,
			MedicalConditions: pp.MedicalConditions,
			Allergies:         pp.Allergies,
			MatchScore:        patientScore(pp, q.Condition),
		})
	}
	return out, nil
}

func (s *Service) SearchResearchers(ctx context.Context, condition, location, studyPhase string) ([]*ResearcherMatch, error) {
	q := ResearcherSearch{
		Condition:  strings.TrimSpace(condition),
		Location:   strings.TrimSpace(location),
		StudyPhase: strings.TrimSpace(studyPhase),
		Limit:      searchLimit,
	}
	rows, err := s.researchers.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*ResearcherMatch, 0, len(rows))
	for _, h := range rows {
		out = append(out, &ResearcherMatch{
			ID:             h.ProfileID,
			Name:           strings.TrimSpace(h.FirstName + " " + h.LastName),
			Title:          h.Title,
			Institution:    h.Institution,
			Specialization: h.Specialization,
			Location:       h.Institution,
			MatchScore:     researcherScore(h.ResearcherProfile, q.Condition),
			ActiveStudies:  h.ActiveStudies,
		})
	}
	return out, nil
}
