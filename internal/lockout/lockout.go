// Package lockout implements the consecutive-failure lock for login.
//
// The state lives on the account record and is mutated inside the caller's
// row-locked transaction, so this package only computes transitions.
package lockout

import (
	"time"
)

const (
	DefaultThreshold = 5
	DefaultDuration  = 30 * time.Minute
)

// State mirrors the lock fields persisted on an account. A zero LockedUntil
// means Open.
type State struct {
	FailedAttempts int
	LockedUntil    time.Time
}

// Locked reports whether the state is Locked at now.
func (s State) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// Policy holds the threshold and lock duration.
type Policy struct {
	Threshold int
	Duration  time.Duration
}

func (p Policy) normalized() Policy {
	if p.Threshold <= 0 {
		p.Threshold = DefaultThreshold
	}
	if p.Duration <= 0 {
		p.Duration = DefaultDuration
	}
	return p
}

// Admission is the outcome of Admit.
type Admission struct {
	// Allowed is false while the lock is in force.
	Allowed bool
	// Remaining is the time left on the lock when not allowed.
	Remaining time.Duration
	// Expired is true when an elapsed lock was cleared by this call.
	Expired bool
}

// RemainingMinutes rounds the lock remainder up to whole minutes, never
// reporting zero for an active lock.
func (a Admission) RemainingMinutes() int {
	if a.Allowed {
		return 0
	}
	m := int((a.Remaining + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}

// Admit runs before a credential is evaluated. An elapsed lock is cleared
// together with the counter. An active lock rejects without consuming an
// attempt.
func (p Policy) Admit(s *State, now time.Time) Admission {
	if s.LockedUntil.IsZero() {
		return Admission{Allowed: true}
	}
	if now.Before(s.LockedUntil) {
		return Admission{Remaining: s.LockedUntil.Sub(now)}
	}
	s.LockedUntil = time.Time{}
	s.FailedAttempts = 0
	return Admission{Allowed: true, Expired: true}
}

// Failure is the outcome of Fail.
type Failure struct {
	// LockedNow is true when this failure reached the threshold.
	LockedNow bool
	// RemainingAttempts before the lock engages. Zero once locked.
	RemainingAttempts int
	Until             time.Time
}

// Fail counts a failed credential check and engages the lock at the
// threshold. Callers must have called Admit first.
func (p Policy) Fail(s *State, now time.Time) Failure {
	p = p.normalized()
	s.FailedAttempts++
	if s.FailedAttempts >= p.Threshold {
		s.LockedUntil = now.Add(p.Duration)
		return Failure{LockedNow: true, Until: s.LockedUntil}
	}
	return Failure{RemainingAttempts: p.Threshold - s.FailedAttempts}
}

// Succeed resets the counter after a successful credential check.
func (p Policy) Succeed(s *State) {
	s.FailedAttempts = 0
	s.LockedUntil = time.Time{}
}
