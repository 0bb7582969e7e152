package ranks

import (
	"errors"
	"reflect"
	"testing"
)

func TestNextOfPreviousRoundTrips(t *testing.T) {
	ladder := MustDefault()
	for _, name := range ladder.Names() {
		previous, ok := ladder.Previous([]string{name})
		if idx, _ := ladder.Index(name); idx == 0 {
			if ok {
				t.Fatalf("expected no previous rank for bottom rank %q, got %q", name, previous)
			}
			continue
		}
		if !ok {
			t.Fatalf("expected previous rank for %q", name)
		}
		next, ok := ladder.Next([]string{"@everyone", previous})
		if !ok || next != name {
			t.Fatalf("Next(Previous(%q)) = %q, %v", name, next, ok)
		}
	}
}

func TestLadderEndpoints(t *testing.T) {
	ladder := MustDefault()
	if next, ok := ladder.Next([]string{"Chairman"}); ok {
		t.Fatalf("expected no rank above top, got %q", next)
	}
	if previous, ok := ladder.Previous([]string{"Screening"}); ok {
		t.Fatalf("expected no rank below bottom, got %q", previous)
	}
}

func TestNoRecognisedRankCannotAct(t *testing.T) {
	ladder := MustDefault()
	roles := []string{"@everyone", "Bots", "Pilot"}
	if _, ok := ladder.Next(roles); ok {
		t.Fatalf("expected Next to report no rank")
	}
	if _, ok := ladder.Previous(roles); ok {
		t.Fatalf("expected Previous to report no rank")
	}
	if _, ok := ladder.Current(nil); ok {
		t.Fatalf("expected Current on nil roles to report no rank")
	}
}

func TestCurrentPrefersHighestRankWhenSeveralHeld(t *testing.T) {
	ladder := MustDefault()
	roles := []string{"Employee", "Director", "Applicant"}
	current, ok := ladder.Current(roles)
	if !ok || current != "Director" {
		t.Fatalf("expected Director, got %q (%v)", current, ok)
	}
	held := ladder.Held(roles)
	want := []string{"Applicant", "Employee", "Director"}
	if !reflect.DeepEqual(held, want) {
		t.Fatalf("Held() = %v, want %v", held, want)
	}
}

func TestNewLadderRejectsInvalidInput(t *testing.T) {
	if _, err := NewLadder(nil); !errors.Is(err, ErrEmptyLadder) {
		t.Fatalf("expected ErrEmptyLadder, got %v", err)
	}
	if _, err := NewLadder([]string{"A", "B", "A"}); !errors.Is(err, ErrDuplicateRank) {
		t.Fatalf("expected ErrDuplicateRank, got %v", err)
	}
	if _, err := NewLadder([]string{"A", "  "}); !errors.Is(err, ErrEmptyLadder) {
		t.Fatalf("expected blank name rejection, got %v", err)
	}
}

func TestAboveUsesLadderOrder(t *testing.T) {
	ladder := MustDefault()
	if idx, ok := ladder.Index("Team Leader"); !ok || idx != 3 {
		t.Fatalf("expected Team Leader at index 3, got %d", idx)
	}
	if !ladder.Above("Director", "Team Leader") {
		t.Fatalf("expected Director above Team Leader")
	}
	if ladder.Above("Team Leader", "Team Leader") {
		t.Fatalf("rank must not be above itself")
	}
	if ladder.Above("Pilot", "Team Leader") {
		t.Fatalf("unknown rank must not be above")
	}
	if err := ladder.Validate("Pilot"); !errors.Is(err, ErrUnknownRank) {
		t.Fatalf("expected ErrUnknownRank, got %v", err)
	}
}
