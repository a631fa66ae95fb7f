package validator

import (
	"encoding/json"
	"fmt"

	"github.com/septivank/energy-measurements-api/internal/db"
	"github.com/septivank/energy-measurements-api/tools/timeparser"
	"github.com/shopspring/decimal"
)

// ValidationError describes why a single raw record was rejected. Any
// rejection aborts the whole import batch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid record: %s", e.Reason)
	}
	return fmt.Sprintf("invalid record: field %q: %s", e.Field, e.Reason)
}

// Validator validates raw dump records and maps them to canonical rows.
// The register-code set is injected so the selection policy stays testable.
type Validator struct {
	registerCodes []string
}

// NewValidator creates a validator over the given register codes, in
// selection priority order.
func NewValidator(registerCodes []string) *Validator {
	return &Validator{registerCodes: registerCodes}
}

// MapRecord validates one raw record and maps it to a measurement draft
// (no ID: the store assigns it at insert time). Every required field is
// checked explicitly; nothing is decoded best-effort.
//
// Exactly one register code must carry the reading. Zero recognized codes
// and more than one are both rejected: the raw schema nominally allows
// either, but neither has a defensible reading to store.
func (v *Validator) MapRecord(raw json.RawMessage) (*db.Measurement, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &ValidationError{Reason: "not a JSON object"}
	}

	if _, err := requireString(fields, "measurement"); err != nil {
		return nil, err
	}

	timestampStr, err := requireString(fields, "timestamp")
	if err != nil {
		return nil, err
	}
	timestamp, parseErr := timeparser.ParseInstant(timestampStr)
	if parseErr != nil {
		return nil, &ValidationError{Field: "timestamp", Reason: parseErr.Error()}
	}

	tagsRaw, ok := fields["tags"]
	if !ok {
		return nil, &ValidationError{Field: "tags", Reason: "missing"}
	}
	var tags map[string]json.RawMessage
	if err := json.Unmarshal(tagsRaw, &tags); err != nil {
		return nil, &ValidationError{Field: "tags", Reason: "not an object"}
	}
	muid, err := requireString(tags, "muid")
	if err != nil {
		return nil, &ValidationError{Field: "tags.muid", Reason: err.(*ValidationError).Reason}
	}
	if _, err := requireString(tags, "quality"); err != nil {
		return nil, &ValidationError{Field: "tags.quality", Reason: err.(*ValidationError).Reason}
	}

	registerCode, value, err := v.selectRegisterValue(fields)
	if err != nil {
		return nil, err
	}

	return &db.Measurement{
		Timestamp:    timestamp,
		Muid:         muid,
		MeterAddress: registerCode,
		Value:        value,
	}, nil
}

// selectRegisterValue walks the closed register-code set in priority order.
// The value is decoded through json.Number and decimal.Decimal so the dump's
// literal precision survives into the store.
func (v *Validator) selectRegisterValue(fields map[string]json.RawMessage) (string, decimal.Decimal, error) {
	var (
		matched string
		value   decimal.Decimal
		count   int
	)

	for _, code := range v.registerCodes {
		raw, ok := fields[code]
		if !ok {
			continue
		}
		count++
		if count > 1 {
			return "", decimal.Decimal{}, &ValidationError{
				Field:  code,
				Reason: "more than one register code carries a value",
			}
		}

		var num json.Number
		if err := json.Unmarshal(raw, &num); err != nil {
			return "", decimal.Decimal{}, &ValidationError{Field: code, Reason: "value is not a number"}
		}
		dec, err := decimal.NewFromString(num.String())
		if err != nil {
			return "", decimal.Decimal{}, &ValidationError{Field: code, Reason: "value is not a number"}
		}
		matched = code
		value = dec
	}

	if count == 0 {
		return "", decimal.Decimal{}, &ValidationError{Reason: "no recognized register code carries a value"}
	}
	return matched, value, nil
}

func requireString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", &ValidationError{Field: key, Reason: "missing"}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &ValidationError{Field: key, Reason: "not a string"}
	}
	return s, nil
}
