package visit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Repository --

type mockRepo struct {
	visits map[uuid.UUID]*Visit
}

func newMockRepo() *mockRepo {
	return &mockRepo{visits: make(map[uuid.UUID]*Visit)}
}

func (m *mockRepo) Create(_ context.Context, v *Visit) error {
	v.ID = uuid.New()
	v.VisitDate = time.Now()
	v.CreatedAt = time.Now()
	v.UpdatedAt = time.Now()
	m.visits[v.ID] = v
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Visit, error) {
	v, ok := m.visits[id]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *mockRepo) AttachChanges(_ context.Context, id uuid.UUID, summary string, fieldsChanged int, reason string) error {
	v, ok := m.visits[id]
	if !ok || v.AllFormsCompleted {
		return ErrNotFound
	}
	v.ChangeSummary = &summary
	v.FieldsChanged = fieldsChanged
	v.ReasonForVisit = &reason
	v.CheckInStatus = StatusUpdated
	return nil
}

func (m *mockRepo) Complete(_ context.Context, id uuid.UUID) error {
	v, ok := m.visits[id]
	if !ok {
		return ErrNotFound
	}
	if !v.AllFormsCompleted {
		now := time.Now()
		v.AllFormsCompleted = true
		v.CompletedAt = &now
		v.CheckInStatus = StatusCompleted
	}
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Visit, int, error) {
	var result []*Visit
	for _, v := range m.visits {
		result = append(result, v)
	}
	return result, len(result), nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	var result []*Visit
	for _, v := range m.visits {
		if v.PatientID == patientID {
			result = append(result, v)
		}
	}
	return result, len(result), nil
}

func (m *mockRepo) LastByPatient(_ context.Context, patientID uuid.UUID) (*Visit, error) {
	var last *Visit
	for _, v := range m.visits {
		if v.PatientID != patientID {
			continue
		}
		if last == nil || v.VisitDate.After(last.VisitDate) {
			last = v
		}
	}
	if last == nil {
		return nil, ErrNotFound
	}
	return last, nil
}

// -- Tests --

func TestOpen(t *testing.T) {
	svc := NewService(newMockRepo())

	v, err := svc.Open(context.Background(), uuid.New(), TypeReturning, "ankle injury", ClientMeta{IPAddress: "10.0.0.5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ID == uuid.Nil {
		t.Error("expected visit id to be assigned")
	}
	if v.CheckInStatus != StatusOpen {
		t.Errorf("expected open status, got %s", v.CheckInStatus)
	}
}

func TestOpen_RequiresPatient(t *testing.T) {
	svc := NewService(newMockRepo())
	if _, err := svc.Open(context.Background(), uuid.Nil, TypeNew, "", ClientMeta{}); err == nil {
		t.Error("expected error for nil patient id")
	}
}

func TestOpen_RejectsUnknownType(t *testing.T) {
	svc := NewService(newMockRepo())
	if _, err := svc.Open(context.Background(), uuid.New(), "walk-in", "", ClientMeta{}); err == nil {
		t.Error("expected error for unknown visit type")
	}
}

func TestAttachChanges(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	v, err := svc.Open(context.Background(), uuid.New(), TypeReturning, "", ClientMeta{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	cs := Diff(
		map[string]string{"phone": "555-1111"},
		map[string]string{"phone": "555-2222"},
	)
	if err := svc.AttachChanges(context.Background(), v.ID, cs, "follow-up"); err != nil {
		t.Fatalf("attach: %v", err)
	}

	got := repo.visits[v.ID]
	if got.FieldsChanged != 1 {
		t.Errorf("expected 1 field changed, got %d", got.FieldsChanged)
	}
	if got.CheckInStatus != StatusUpdated {
		t.Errorf("expected updated status, got %s", got.CheckInStatus)
	}
	if got.ChangeSummary == nil {
		t.Fatal("expected change summary to be stored")
	}
	decoded, err := DecodeChangeSet(*got.ChangeSummary)
	if err != nil {
		t.Fatalf("decode stored summary: %v", err)
	}
	if decoded.Changes["phone"].New != "555-2222" {
		t.Errorf("unexpected stored change detail: %+v", decoded.Changes)
	}
}

func TestAttachChanges_SupersedingOverwrites(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	v, _ := svc.Open(context.Background(), uuid.New(), TypeReturning, "", ClientMeta{})

	first := Diff(map[string]string{"phone": "1"}, map[string]string{"phone": "2"})
	if err := svc.AttachChanges(context.Background(), v.ID, first, "a"); err != nil {
		t.Fatalf("first attach: %v", err)
	}

	second := Diff(
		map[string]string{"phone": "1", "city": "Austin"},
		map[string]string{"phone": "2", "city": "Dallas"},
	)
	if err := svc.AttachChanges(context.Background(), v.ID, second, "b"); err != nil {
		t.Fatalf("second attach: %v", err)
	}

	if repo.visits[v.ID].FieldsChanged != 2 {
		t.Errorf("expected superseding change set with 2 fields, got %d", repo.visits[v.ID].FieldsChanged)
	}
}

func TestAttachChanges_RejectedAfterComplete(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	v, _ := svc.Open(context.Background(), uuid.New(), TypeReturning, "", ClientMeta{})
	if err := svc.Complete(context.Background(), v.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	cs := Diff(map[string]string{"phone": "1"}, map[string]string{"phone": "2"})
	if err := svc.AttachChanges(context.Background(), v.ID, cs, "late"); err != ErrCompleted {
		t.Errorf("expected ErrCompleted, got %v", err)
	}
}

func TestComplete_Irreversible(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	v, _ := svc.Open(context.Background(), uuid.New(), TypeReturning, "", ClientMeta{})
	if err := svc.Complete(context.Background(), v.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	completedAt := repo.visits[v.ID].CompletedAt
	if completedAt == nil {
		t.Fatal("expected completion timestamp")
	}

	// Completing again is a no-op: the timestamp must not move.
	if err := svc.Complete(context.Background(), v.ID); err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if repo.visits[v.ID].CompletedAt != completedAt {
		t.Error("completion timestamp must not change on repeat complete")
	}
}

func TestLastByPatient(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	pid := uuid.New()

	if _, err := svc.LastByPatient(context.Background(), pid); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for unknown patient, got %v", err)
	}

	first, _ := svc.Open(context.Background(), pid, TypeNew, "", ClientMeta{})
	repo.visits[first.ID].VisitDate = time.Now().Add(-time.Hour)
	second, _ := svc.Open(context.Background(), pid, TypeReturning, "", ClientMeta{})

	last, err := svc.LastByPatient(context.Background(), pid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last.ID != second.ID {
		t.Errorf("expected most recent visit %s, got %s", second.ID, last.ID)
	}
}
