package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{CodeInvalidParam, http.StatusBadRequest},
		{CodeNoSegments, http.StatusBadRequest},
		{CodeDocumentNotFound, http.StatusNotFound},
		{CodeIndexNotFound, http.StatusNotFound},
		{CodePayloadTooLarge, http.StatusRequestEntityTooLarge},
		{CodeTooManyRequests, http.StatusTooManyRequests},
		{CodeIndexCorrupt, http.StatusInternalServerError},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "x").HTTPStatus; got != tt.want {
				t.Errorf("HTTPStatus = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWithDetailDoesNotMutateShared(t *testing.T) {
	e := ErrNotFound.WithDetail("file abc")
	if ErrNotFound.Detail != "" {
		t.Errorf("ErrNotFound.Detail = %q, want empty", ErrNotFound.Detail)
	}
	if e.Detail != "file abc" {
		t.Errorf("Detail = %q, want %q", e.Detail, "file abc")
	}
	if !stderrors.Is(e, ErrNotFound) {
		t.Error("errors.Is(copy, ErrNotFound) = false, want true")
	}
}

func TestAsAppError(t *testing.T) {
	base := ErrIndexNotFound.WithDetail("f1")
	wrapped := fmt.Errorf("search: %w", base)

	if !IsAppError(wrapped) {
		t.Fatal("IsAppError(wrapped) = false, want true")
	}
	if got := AsAppError(wrapped).Code; got != CodeIndexNotFound {
		t.Errorf("Code = %s, want %s", got, CodeIndexNotFound)
	}

	plain := stderrors.New("boom")
	got := AsAppError(plain)
	if got.Code != CodeUnknown {
		t.Errorf("Code = %s, want %s", got.Code, CodeUnknown)
	}
	if !stderrors.Is(got, plain) {
		t.Error("wrapped plain error lost")
	}
}
