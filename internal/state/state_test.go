package state

import (
	"testing"

	rankerrors "github.com/activerank/activerank/internal/errors"
	"github.com/activerank/activerank/pkg/types"
)

func TestNew(t *testing.T) {
	s := New(5, 4, 0.1)
	if s.ActiveCount() != 4 {
		t.Fatalf("expected 4 active workers, got %d", s.ActiveCount())
	}
	if s.SampleComplexity() != 0 {
		t.Errorf("fresh state should have zero queries")
	}
	sizes := s.ActiveSizes()
	if len(sizes) != 1 || sizes[0] != 4 {
		t.Errorf("unexpected size history %v", sizes)
	}
}

func TestSetActive_Shrinks(t *testing.T) {
	s := New(5, 4, 0.1)
	if err := s.SetActive([]types.WorkerID{1, 3}); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if s.ActiveCount() != 2 {
		t.Errorf("expected 2 active workers, got %d", s.ActiveCount())
	}

	// Same size is not recorded as a change
	if err := s.SetActive([]types.WorkerID{1, 3}); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	sizes := s.ActiveSizes()
	if len(sizes) != 2 || sizes[1] != 2 {
		t.Errorf("unexpected size history %v", sizes)
	}
}

func TestSetActive_RejectsEmpty(t *testing.T) {
	s := New(5, 4, 0.1)
	err := s.SetActive(nil)
	if err == nil {
		t.Fatal("expected error for empty active set")
	}
	if !rankerrors.IsPreconditionViolation(err) {
		t.Errorf("expected precondition violation, got %v", err)
	}
	if s.ActiveCount() != 4 {
		t.Errorf("failed SetActive must not modify the set")
	}
}

func TestSetActive_RejectsGrowthAndStrangers(t *testing.T) {
	s := New(5, 4, 0.1)
	if err := s.SetActive([]types.WorkerID{0, 1}); err != nil {
		t.Fatal(err)
	}

	err := s.SetActive([]types.WorkerID{0, 1, 2})
	if rankerrors.GetCategory(err) != rankerrors.ErrCategoryInternal {
		t.Errorf("growth should be an internal error, got %v", err)
	}

	err = s.SetActive([]types.WorkerID{3})
	if rankerrors.GetCategory(err) != rankerrors.ErrCategoryInternal {
		t.Errorf("re-adding an eliminated worker should fail, got %v", err)
	}
}

func TestActiveReturnsCopy(t *testing.T) {
	s := New(5, 3, 0.1)
	a := s.Active()
	a[0] = 99
	if s.ActiveView()[0] != 0 {
		t.Error("Active should return a copy")
	}
}

func TestAddQueries(t *testing.T) {
	s := New(2, 2, 0.1)
	s.AddQueries(10)
	s.AddQueries(0)
	s.AddQueries(-5)
	s.AddQueries(3)
	if s.SampleComplexity() != 13 {
		t.Errorf("expected 13 queries, got %d", s.SampleComplexity())
	}
}
