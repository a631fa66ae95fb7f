package timeparser

import (
	"testing"
	"time"
)

func TestParseInstant_Millis(t *testing.T) {
	got, err := ParseInstant("2023-02-01T01:30:00.000Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2023, 2, 1, 1, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParseInstant_NoFraction(t *testing.T) {
	got, err := ParseInstant("2023-02-01T01:30:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2023, 2, 1, 1, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParseInstant_OffsetNormalizedToUTC(t *testing.T) {
	got, err := ParseInstant("2023-02-01T03:30:00+02:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2023, 2, 1, 1, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if got.Location() != time.UTC {
		t.Errorf("expected UTC location, got %v", got.Location())
	}
}

func TestParseInstant_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"01/02/2023 01:30:00",
		"2023-02-01",
		"not-a-time",
	}

	for _, value := range invalid {
		if _, err := ParseInstant(value); err == nil {
			t.Errorf("expected error for %q, got none", value)
		}
	}
}
