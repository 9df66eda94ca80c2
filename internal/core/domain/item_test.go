package domain

import (
	"encoding/json"
	"testing"
)

func TestCompletion(t *testing.T) {
	if CompletionOf(true) != Complete || CompletionOf(false) != Incomplete {
		t.Error("CompletionOf mismatch")
	}
	if !Complete.Bool() || Incomplete.Bool() {
		t.Error("Bool mismatch")
	}

	tests := []struct {
		in      string
		want    Completion
		wantErr bool
	}{
		{"true", Complete, false},
		{"TRUE", Complete, false},
		{"false", Incomplete, false},
		{"", Incomplete, false},
		{"yes", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCompletion(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCompletion(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCompletion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompletion_JSON(t *testing.T) {
	data, err := json.Marshal(GenericItem{ID: "1", Title: "t", Complete: Complete})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"id":"1","title":"t","description":"","complete":"true"}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}

func TestDecodeNativeItem_KeepsLargeIDs(t *testing.T) {
	item, err := DecodeNativeItem([]byte(`{"id": 1234567890123456789, "subject": "x", "done": true}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := item.String("id"); got != "1234567890123456789" {
		t.Errorf("expected exact id, got %s", got)
	}
	if !item.Bool("done") {
		t.Error("expected done to be true")
	}
	if item.String("missing") != "" {
		t.Error("expected missing field to be empty")
	}
}

func TestDecodeNativeItem_Null(t *testing.T) {
	if _, err := DecodeNativeItem([]byte(`null`)); err == nil {
		t.Error("expected error for null document")
	}
}

func TestNativeItem_String(t *testing.T) {
	item := NativeItem{"f": float64(42), "i": 7, "s": "abc", "b": false}
	tests := map[string]string{"f": "42", "i": "7", "s": "abc", "b": "false"}
	for field, want := range tests {
		if got := item.String(field); got != want {
			t.Errorf("String(%s) = %q, want %q", field, got, want)
		}
	}
}

func TestNativeItem_Clone(t *testing.T) {
	orig := NativeItem{"id": "1"}
	c := orig.Clone()
	c["id"] = "2"
	if orig["id"] != "1" {
		t.Error("clone shares storage with original")
	}
}
