package model

import (
	"errors"
	"testing"
)

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{"", StatusProcessing},
		{StatusQueued, StatusProcessing},
		{StatusProcessing, StatusProcessing},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusError},
		{StatusError, StatusProcessing},
		{StatusCompleted, StatusCompleted},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{StatusCompleted, StatusProcessing},
		{StatusCompleted, StatusError},
		{StatusQueued, StatusCompleted},
		{"not_a_state", StatusProcessing},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionJobStatus_BlocksIllegalTransition(t *testing.T) {
	job := Job{ID: "job-1", Status: StatusCompleted}

	err := TransitionJobStatus(&job, StatusProcessing, "")
	if !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("status changed on rejected transition: %q", job.Status)
	}
}

func TestTransitionJobStatus_SetsAndClearsErrorMessage(t *testing.T) {
	job := Job{ID: "job-1", Status: StatusProcessing}

	if err := TransitionJobStatus(&job, StatusError, "source unavailable"); err != nil {
		t.Fatalf("transition to error: %v", err)
	}
	if job.ErrorMessage != "source unavailable" {
		t.Fatalf("error message mismatch: %q", job.ErrorMessage)
	}
	if err := TransitionJobStatus(&job, StatusProcessing, "ignored"); err != nil {
		t.Fatalf("transition back to processing: %v", err)
	}
	if job.ErrorMessage != "" {
		t.Fatalf("expected error message cleared, got %q", job.ErrorMessage)
	}
}

func TestIsTerminal(t *testing.T) {
	for status, want := range map[string]bool{
		StatusQueued:     false,
		StatusProcessing: false,
		StatusCompleted:  true,
		StatusError:      true,
	} {
		if got := IsTerminal(status); got != want {
			t.Fatalf("IsTerminal(%q) = %v, want %v", status, got, want)
		}
	}
}
