package patient

import (
	"testing"
	"time"
)

func TestMaskSSN(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"123-45-6789", "***-**-6789"},
		{"123456789", "***-**-6789"},
		{"", ""},
		{"89", "***-**-****"},
	}
	for _, tc := range cases {
		if got := MaskSSN(tc.in); got != tc.want {
			t.Errorf("MaskSSN(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAge(t *testing.T) {
	p := &Patient{DateOfBirth: time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)}

	if got := p.Age(time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)); got != 34 {
		t.Errorf("day before birthday: got %d, want 34", got)
	}
	if got := p.Age(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)); got != 35 {
		t.Errorf("on birthday: got %d, want 35", got)
	}
}

func TestFieldMapMasksSSN(t *testing.T) {
	p := &Patient{SSN: "123-45-6789"}
	if got := p.FieldMap()["ssn"]; got != "***-**-6789" {
		t.Errorf("field map must carry the masked ssn, got %q", got)
	}
}

func TestFieldMapOmitsVisitScopedFields(t *testing.T) {
	m := (&Patient{}).FieldMap()
	if _, ok := m["reason_for_visit"]; ok {
		t.Error("reason for visit is visit-scoped and must not be diffed on the patient")
	}
}

func TestFieldMapDates(t *testing.T) {
	holder := time.Date(1960, 1, 2, 0, 0, 0, 0, time.UTC)
	p := &Patient{
		DateOfBirth:     time.Date(1988, 12, 31, 0, 0, 0, 0, time.UTC),
		PolicyHolderDOB: &holder,
	}
	m := p.FieldMap()
	if m["date_of_birth"] != "1988-12-31" {
		t.Errorf("date_of_birth = %q", m["date_of_birth"])
	}
	if m["policy_holder_dob"] != "1960-01-02" {
		t.Errorf("policy_holder_dob = %q", m["policy_holder_dob"])
	}

	p.PolicyHolderDOB = nil
	if got := p.FieldMap()["policy_holder_dob"]; got != "" {
		t.Errorf("nil policy holder dob should map to empty string, got %q", got)
	}
}
