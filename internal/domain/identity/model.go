package identity

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/blobstore"
)

// DateLayout is the wire format of date_of_birth.
const DateLayout = "2006-01-02"

// Profile is the account record shared by patients and researchers.
type Profile struct {
	ID                           uuid.UUID `db:"id" json:"id"`
	Username                     string    `db:"username" json:"username"`
	Email                        string    `db:"email" json:"email"`
	PasswordHash                 string    `db:"password_hash" json:"-"`
	Role                         auth.Role `db:"role" json:"role"`
	FirstName                    string    `db:"first_name" json:"first_name"`
	LastName                     string    `db:"last_name" json:"last_name"`
	ProfilePicture               string    `db:"profile_picture" json:"-"`
	Bio                          string    `db:"bio" json:"bio"`
	Address                      string    `db:"address" json:"address"`
	EmergencyContactName         string    `db:"emergency_contact_name" json:"emergency_contact_name"`
	EmergencyContactPhone        string    `db:"emergency_contact_phone" json:"emergency_contact_phone"`
	EmergencyContactRelationship string    `db:"emergency_contact_relationship" json:"emergency_contact_relationship"`
	CreatedAt                    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt                    time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Profile) Principal() auth.Principal {
	return auth.Principal{ProfileID: p.ID, Role: p.Role, Username: p.Username}
}

func (p *Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type PatientProfile struct {
	ProfileID         uuid.UUID `db:"profile_id" json:"-"`
	DateOfBirth       time.Time `db:"date_of_birth" json:"date_of_birth"`
	Gender            string    `db:"gender" json:"gender"`
	CancerType        string    `db:"cancer_type" json:"cancer_type"`
	PhoneNumber       string    `db:"phone_number" json:"phone_number"`
	BloodType         string    `db:"blood_type" json:"blood_type"`
	Height            *float64  `db:"height" json:"height"`
	Weight            *float64  `db:"weight" json:"weight"`
	Allergies         string    `db:"allergies" json:"allergies"`
	MedicalConditions string    `db:"medical_conditions" json:"medical_conditions"`
	FamilyHistory     string    `db:"family_history" json:"family_history"`
	InsuranceProvider string    `db:"insurance_provider" json:"insurance_provider"`
	InsuranceNumber   string    `db:"insurance_number" json:"insurance_number"`
}

// BMI is weight (kg) over height (cm) squared, rounded to two decimals.
// It is nil unless both are set.
func (pp *PatientProfile) BMI() *float64 {
	if pp.Height == nil || pp.Weight == nil || *pp.Height <= 0 || *pp.Weight <= 0 {
		return nil
	}
	m := *pp.Height / 100
	bmi := math.Round(*pp.Weight/(m*m)*100) / 100
	return &bmi
}

// Age is the whole number of 365 day years since the date of birth.
func (pp *PatientProfile) Age(now time.Time) int {
	return int(now.Sub(pp.DateOfBirth).Hours() / 24 / 365)
}

type ResearcherProfile struct {
	ProfileID         uuid.UUID `db:"profile_id" json:"-"`
	Title             string    `db:"title" json:"title"`
	Institution       string    `db:"institution" json:"institution"`
	Specialization    string    `db:"specialization" json:"specialization"`
	PhoneNumber       string    `db:"phone_number" json:"phone_number"`
	LicenseNumber     string    `db:"license_number" json:"license_number"`
	YearsOfExperience int       `db:"years_of_experience" json:"years_of_experience"`
	Education         string    `db:"education" json:"education"`
	Certifications    string    `db:"certifications" json:"certifications"`
}

// -- Views --

// User is the session user returned by login and GET /api/user.
type User struct {
	ID                uuid.UUID          `json:"id"`
	Username          string             `json:"username"`
	Email             string             `json:"email"`
	FirstName         string             `json:"first_name"`
	LastName          string             `json:"last_name"`
	Role              auth.Role          `json:"role"`
	IsAuthenticated   bool               `json:"is_authenticated"`
	PatientProfile    *PatientSummary    `json:"patient_profile,omitempty"`
	ResearcherProfile *ResearcherSummary `json:"researcher_profile,omitempty"`
}

type PatientSummary struct {
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
	CancerType  string `json:"cancer_type"`
	PhoneNumber string `json:"phone_number"`
}

type ResearcherSummary struct {
	Title          string `json:"title"`
	Institution    string `json:"institution"`
	Specialization string `json:"specialization"`
	PhoneNumber    string `json:"phone_number"`
}

func newUser(p *Profile) *User {
	return &User{
		ID:              p.ID,
		Username:        p.Username,
		Email:           p.Email,
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		Role:            p.Role,
		IsAuthenticated: true,
	}
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

type PatientDetails struct {
	*PatientProfile
	DateOfBirth string   `json:"date_of_birth"`
	BMI         *float64 `json:"bmi"`
}

// ProfileView is the full profile returned by GET /api/profile.
type ProfileView struct {
	ID                uuid.UUID          `json:"id"`
	Username          string             `json:"username"`
	Email             string             `json:"email"`
	FirstName         string             `json:"first_name"`
	LastName          string             `json:"last_name"`
	Role              auth.Role          `json:"role"`
	ProfilePicture    *string            `json:"profile_picture"`
	Bio               string             `json:"bio"`
	Address           string             `json:"address"`
	EmergencyContact  EmergencyContact   `json:"emergency_contact"`
	PatientProfile    *PatientDetails    `json:"patient_profile,omitempty"`
	ResearcherProfile *ResearcherProfile `json:"researcher_profile,omitempty"`
	ProfileCompletion int                `json:"profile_completion"`
}

func newProfileView(p *Profile, pp *PatientProfile, rp *ResearcherProfile) *ProfileView {
	v := &ProfileView{
		ID:        p.ID,
		Username:  p.Username,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Role:      p.Role,
		Bio:       p.Bio,
		Address:   p.Address,
		EmergencyContact: EmergencyContact{
			Name:         p.EmergencyContactName,
			Phone:        p.EmergencyContactPhone,
			Relationship: p.EmergencyContactRelationship,
		},
		ResearcherProfile: rp,
	}
	if p.ProfilePicture != "" {
		url := blobstore.URL(p.ProfilePicture)
		v.ProfilePicture = &url
	}
	if pp != nil {
		v.PatientProfile = &PatientDetails{
			PatientProfile: pp,
			DateOfBirth:    pp.DateOfBirth.Format(DateLayout),
			BMI:            pp.BMI(),
		}
	}
	v.ProfileCompletion = completion(p, pp)
	return v
}

// completion is the share of filled profile fields as a percentage. Patient
// fields count only for patients; researcher fields never count.
func completion(p *Profile, pp *PatientProfile) int {
	fields := []bool{
		filled(p.FirstName), filled(p.LastName), filled(p.Bio), filled(p.Address), filled(p.ProfilePicture),
		filled(p.EmergencyContactName), filled(p.EmergencyContactPhone), filled(p.EmergencyContactRelationship),
	}
	if pp != nil {
		fields = append(fields,
			!pp.DateOfBirth.IsZero(), filled(pp.Gender), filled(pp.CancerType), filled(pp.PhoneNumber),
			filled(pp.BloodType), pp.Height != nil, pp.Weight != nil, pp.BMI() != nil,
			filled(pp.Allergies), filled(pp.MedicalConditions), filled(pp.FamilyHistory),
			filled(pp.InsuranceProvider), filled(pp.InsuranceNumber),
		)
	}
	n := 0
	for _, ok := range fields {
		if ok {
			n++
		}
	}
	pct := int(math.Round(float64(n) / float64(len(fields)) * 100))
	if pct > 100 {
		pct = 100
	}
	return pct
}

func filled(s string) bool { return strings.TrimSpace(s) != "" }

// -- Search --

type PatientSearch struct {
	Condition string
	Gender    string
	// Born between these dates when set.
	BornAfter  *time.Time
	BornBefore *time.Time
	Limit      int
}

type ResearcherSearch struct {
	Condition  string
	Location   string
	StudyPhase string
	Limit      int
}

// ResearcherHit is a researcher row joined with its profile name and study count.
type ResearcherHit struct {
	*ResearcherProfile
	FirstName     string
	LastName      string
	ActiveStudies int
}

type PatientMatch struct {
	ID                uuid.UUID `json:"id"`
	Age               int       `json:"age"`
	Gender            string    `json:"gender"`
	Condition         string    `json:"condition"`
	MedicalConditions string    `json:"medical_conditions"`
	Allergies         string    `json:"allergies"`
	MatchScore        int       `json:"match_score"`
}

type ResearcherMatch struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Title          string    `json:"title"`
	Institution    string    `json:"institution"`
	Specialization string    `json:"specialization"`
	Location       string    `json:"location"`
	MatchScore     int       `json:"match_score"`
	ActiveStudies  int       `json:"active_studies"`
}

const (
	patientBaseScore    = 85
	researcherBaseScore = 90
	maxScore            = 100
	searchLimit         = 20
)

func patientScore(pp *PatientProfile, condition string) int {
	score := patientBaseScore
	c := strings.ToLower(condition)
	if c != "" && strings.Contains(strings.ToLower(pp.CancerType), c) {
		score += 10
	}
	if c != "" && strings.Contains(strings.ToLower(pp.MedicalConditions), c) {
		score += 5
	}
	return min(score, maxScore)
}

func researcherScore(rp *ResearcherProfile, condition string) int {
	score := researcherBaseScore
	c := strings.ToLower(condition)
	if c != "" && strings.Contains(strings.ToLower(rp.Specialization), c) {
		score += 10
	}
	return min(score, maxScore)
}
