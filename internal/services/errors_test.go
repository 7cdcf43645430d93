package services_test

import (
	"errors"
	"strings"
	"testing"

	"dubber/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	cause := errors.New("boom")
	err := services.Wrap(services.ErrProvider, "diarizing", "submit prediction", "provider rejected audio", cause)
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("expected provider marker, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	for _, want := range []string{"diarizing", "submit prediction", "provider rejected audio"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in error, got %q", want, err.Error())
		}
	}
}

func TestWrapDefaultsToProvider(t *testing.T) {
	err := services.Wrap(nil, "translating", "", "empty response", nil)
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("expected provider fallback marker, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrValidation, "", "", "bad input", nil), "validation"},
		{services.Wrap(services.ErrOperationTimeout, "resyncing", "poll", "budget exhausted", nil), "operation_timeout"},
		{services.Wrap(services.ErrOperationFailed, "resyncing", "poll", "provider failed", nil), "operation_failed"},
		{services.Wrap(services.ErrPersistence, "", "update job", "db locked", nil), "persistence"},
		{services.Wrap(services.ErrCanceled, "", "", "shutdown", nil), "canceled"},
		{errors.New("plain"), "internal"},
	}
	for _, tc := range cases {
		if got := services.Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
