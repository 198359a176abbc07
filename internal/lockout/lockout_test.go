package lockout

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func TestFailEngagesLockAtThreshold(t *testing.T) {
	p := Policy{Threshold: 5, Duration: 30 * time.Minute}
	var s State

	for i := 1; i <= 4; i++ {
		if a := p.Admit(&s, t0); !a.Allowed {
			t.Fatalf("attempt %d unexpectedly rejected", i)
		}
		f := p.Fail(&s, t0)
		if f.LockedNow || f.RemainingAttempts != 5-i {
			t.Fatalf("attempt %d: unexpected failure outcome %+v", i, f)
		}
	}
	f := p.Fail(&s, t0)
	if !f.LockedNow || !s.LockedUntil.Equal(t0.Add(30*time.Minute)) {
		t.Fatalf("expected lock at threshold, got %+v state=%+v", f, s)
	}
	if !s.Locked(t0.Add(29 * time.Minute)) {
		t.Fatal("expected state to report locked")
	}
}

func TestAdmitRejectsWithoutConsumingAttempt(t *testing.T) {
	p := Policy{Threshold: 5, Duration: 30 * time.Minute}
	s := State{FailedAttempts: 5, LockedUntil: t0.Add(30 * time.Minute)}

	a := p.Admit(&s, t0.Add(10*time.Minute))
	if a.Allowed {
		t.Fatal("expected lock to reject")
	}
	if a.RemainingMinutes() != 20 {
		t.Fatalf("expected 20 minutes remaining, got %d", a.RemainingMinutes())
	}
	if s.FailedAttempts != 5 {
		t.Fatalf("expected counter untouched, got %d", s.FailedAttempts)
	}

	a = p.Admit(&s, t0.Add(29*time.Minute+30*time.Second))
	if a.RemainingMinutes() != 1 {
		t.Fatalf("expected partial minute to round up to 1, got %d", a.RemainingMinutes())
	}
}

func TestAdmitClearsElapsedLock(t *testing.T) {
	p := Policy{}
	s := State{FailedAttempts: 5, LockedUntil: t0}

	a := p.Admit(&s, t0)
	if !a.Allowed || !a.Expired {
		t.Fatalf("expected elapsed lock to clear at now == until, got %+v", a)
	}
	if s.FailedAttempts != 0 || !s.LockedUntil.IsZero() {
		t.Fatalf("expected open state with zero counter, got %+v", s)
	}

	f := p.Fail(&s, t0)
	if f.RemainingAttempts != DefaultThreshold-1 {
		t.Fatalf("expected counting to restart from zero, got %+v", f)
	}
}

func TestSucceedResetsCounter(t *testing.T) {
	p := Policy{}
	s := State{FailedAttempts: 3}
	p.Succeed(&s)
	if s.FailedAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", s.FailedAttempts)
	}
}
