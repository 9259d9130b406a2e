package ehr

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestMedicalRecord_MarshalJSON_DateOnly(t *testing.T) {
	r := &MedicalRecord{Title: "CBC", Date: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"date":"2026-02-01"`) {
		t.Errorf("unexpected json %s", b)
	}
	if strings.Contains(string(b), "patient_id") || strings.Contains(string(b), "file_key") {
		t.Errorf("internal fields serialized: %s", b)
	}
}

func TestVitalSigns_MarshalJSON_BMI(t *testing.T) {
	w, h := 70.0, 175.0
	b, _ := json.Marshal(&VitalSigns{Weight: &w, Height: &h})
	if !strings.Contains(string(b), `"bmi":22.9`) {
		t.Errorf("expected bmi 22.9 in %s", b)
	}
	b, _ = json.Marshal(&VitalSigns{Weight: &w})
	if !strings.Contains(string(b), `"bmi":null`) {
		t.Errorf("expected null bmi in %s", b)
	}
}

func TestAllergy_MarshalJSON_OptionalDate(t *testing.T) {
	onset := time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC)
	b, _ := json.Marshal(&Allergy{Allergen: "Peanut", OnsetDate: &onset})
	if !strings.Contains(string(b), `"onset_date":"2019-05-01"`) {
		t.Errorf("unexpected json %s", b)
	}
	b, _ = json.Marshal(&Allergy{Allergen: "Peanut"})
	if !strings.Contains(string(b), `"onset_date":null`) {
		t.Errorf("unexpected json %s", b)
	}
}
