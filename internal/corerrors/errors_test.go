package corerrors

import (
	"errors"
	"testing"
)

func TestErrorsAsMatchesSentinelKind(t *testing.T) {
	var err error = &ValidationError{Field: "mandate", Message: "required"}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatal("expected errors.As to unwrap to *ValidationError")
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected errors.Is to match the validation sentinel")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("expected the validation error not to match an unrelated sentinel")
	}
}

func TestConflictErrorMessageWithoutTransition(t *testing.T) {
	err := &ConflictError{Entity: "executive", Reason: "keep_separate decision blocks union"}
	if got := err.Error(); got != "executive: keep_separate decision blocks union" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestConflictErrorMessageWithTransition(t *testing.T) {
	err := &ConflictError{Entity: "executive", From: "unverified", To: "partial", Reason: "bad"}
	if got := err.Error(); got != "executive: illegal transition unverified -> partial: bad" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestEachTypedErrorUnwrapsToItsSentinel(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{&ValidationError{}, ErrValidation},
		{&AuthorizationError{}, ErrAuthorization},
		{&NotFoundError{}, ErrNotFound},
		{&ExternalProviderConfigError{}, ErrExternalProviderConfig},
		{&UpstreamError{}, ErrUpstream},
		{&ConflictError{}, ErrConflict},
		{&LimitExceededError{}, ErrLimitExceeded},
		{&TransientError{}, ErrTransient},
	}
	for _, tc := range cases {
		if !errors.Is(tc.err, tc.want) {
			t.Errorf("%T does not unwrap to its expected sentinel", tc.err)
		}
	}
}
