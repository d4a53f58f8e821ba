package vat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type memoryNumberStore struct {
	numbers []SavedNumber
	marked  map[uuid.UUID]bool
}

func (m *memoryNumberStore) ListStale(_ context.Context, cutoff time.Time, _ int) ([]SavedNumber, error) {
	var stale []SavedNumber
	for _, n := range m.numbers {
		if n.LastCheckedAt == nil || n.LastCheckedAt.Before(cutoff) {
			stale = append(stale, n)
		}
	}
	return stale, nil
}

func (m *memoryNumberStore) MarkChecked(_ context.Context, id uuid.UUID, valid bool, _ string, _ time.Time) error {
	if m.marked == nil {
		m.marked = make(map[uuid.UUID]bool)
	}
	m.marked[id] = valid
	return nil
}

func TestRevalidatorMarksVerifiedOutcomes(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Hour)
	old := now.Add(-30 * 24 * time.Hour)

	staleID := uuid.New()
	freshID := uuid.New()
	store := &memoryNumberStore{numbers: []SavedNumber{
		{ID: staleID, VatNumber: "DE123456789", CountryCode: "DE", Valid: true, LastCheckedAt: &old},
		{ID: freshID, VatNumber: "NL821134557B01", CountryCode: "NL", Valid: true, LastCheckedAt: &recent},
	}}

	rev := &Revalidator{
		Store:   store,
		Service: &Service{Registry: &stubRegistry{result: RegistryResult{Valid: false}}},
		Now:     func() time.Time { return now },
	}
	checked, err := rev.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if checked != 1 {
		t.Fatalf("expected 1 number checked, got %d", checked)
	}
	if valid, ok := store.marked[staleID]; !ok || valid {
		t.Fatalf("stale number must be marked invalid, marked=%v", store.marked)
	}
	if _, ok := store.marked[freshID]; ok {
		t.Fatal("recently checked number must not be touched")
	}
}

func TestRevalidatorSkipsDegradedAnswers(t *testing.T) {
	old := time.Now().Add(-30 * 24 * time.Hour)
	store := &memoryNumberStore{numbers: []SavedNumber{
		{ID: uuid.New(), VatNumber: "DE123456789", CountryCode: "DE", LastCheckedAt: &old},
	}}
	rev := &Revalidator{
		Store:   store,
		Service: &Service{Registry: &stubRegistry{err: errors.New("timeout")}},
	}
	checked, err := rev.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if checked != 0 || len(store.marked) != 0 {
		t.Fatalf("registry outage must not overwrite check state, checked=%d marked=%v", checked, store.marked)
	}
}
