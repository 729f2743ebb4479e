package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeNotFound, "resource not found")
		if err.Error() != "[NOT_FOUND] resource not found" {
			t.Errorf("expected [NOT_FOUND] resource not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("original error")
		err := Wrap(original, CodeInternal, "internal failure")
		expected := "[INTERNAL_ERROR] internal failure: original error"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
		if !errors.Is(err, original) {
			t.Error("expected wrapped error to unwrap to original")
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeValidationError, "invalid input")
		if !IsCode(err, CodeValidationError) {
			t.Error("expected IsCode to return true for CodeValidationError")
		}
		if IsCode(err, CodeNotFound) {
			t.Error("expected IsCode to return false for CodeNotFound")
		}
	})

	t.Run("IsCodeThroughFmtWrap", func(t *testing.T) {
		err := fmt.Errorf("loading: %w", New(CodeConfig, "bad pattern"))
		if !IsCode(err, CodeConfig) {
			t.Error("expected IsCode to see through fmt wrapping")
		}
		if !IsFatal(err) {
			t.Error("expected config error to be fatal")
		}
	})

	t.Run("PerFileCodesAreNotFatal", func(t *testing.T) {
		for _, code := range []ErrorCode{CodeParse, CodeResolution, CodeIO} {
			if IsFatal(New(code, "x")) {
				t.Errorf("expected %s to be non-fatal", code)
			}
		}
	})

	t.Run("AddContext", func(t *testing.T) {
		err := AddContext(New(CodeConfig, "bad pattern"), CtxPattern, "[")
		want := "[CONFIG_ERROR] bad pattern map[pattern:[]"
		if err.Error() != want {
			t.Errorf("expected %q, got %q", want, err.Error())
		}

		plain := AddContext(errors.New("boom"), CtxPath, "a.py")
		if !IsCode(plain, CodeInternal) {
			t.Error("expected plain errors to be wrapped as internal")
		}
	})
}
