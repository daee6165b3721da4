package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNotFoundStatus(t *testing.T) {
	err := NotFound("no such key %q", "abc")
	if err.Status != http.StatusNotFound {
		t.Errorf("NotFound().Status = %d, want %d", err.Status, http.StatusNotFound)
	}
	if err.Message != `no such key "abc"` {
		t.Errorf("NotFound().Message = %q", err.Message)
	}
}

func TestBadInputStatus(t *testing.T) {
	if err := BadInput("missing client id"); err.Status != http.StatusBadRequest {
		t.Errorf("BadInput().Status = %d, want %d", err.Status, http.StatusBadRequest)
	}
}

func TestInternalCarriesStack(t *testing.T) {
	err := Internal("disk full", "write failed")
	if err.Status != http.StatusInternalServerError {
		t.Errorf("Internal().Status = %d, want %d", err.Status, http.StatusInternalServerError)
	}
	if err.Stack != "disk full" {
		t.Errorf("Internal().Stack = %q, want %q", err.Stack, "disk full")
	}
}

func TestWriteJSONRendersTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, NotFound("gone"))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	var got wireError
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("response was not valid JSON: %v", err)
	}
	if got.Message != "gone" || got.Status != http.StatusNotFound {
		t.Errorf("got %+v", got)
	}
}

func TestWriteJSONTreatsUnknownErrorsAsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, errors.New("boom"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestWriteJSONOmitsEmptyStack(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, NotFound("gone"))

	var m map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("response was not valid JSON: %v", err)
	}
	if _, ok := m["stack"]; ok {
		t.Errorf("expected no stack field in body, got %s", w.Body.String())
	}
}
