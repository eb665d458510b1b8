package tutor

import (
	"errors"
	"testing"
)

func TestExtractControlBlock(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		schema    ControlSchema
		wantFound bool
		wantValue bool
		wantErr   bool
	}{
		{
			name:      "no control block",
			text:      "Great answer! Let's move on.",
			schema:    TeachingControlSchema,
			wantFound: false,
		},
		{
			name:      "objective complete true",
			text:      "You clearly know this already.\n<control>{\"objective_complete\": true}</control>",
			schema:    TeachingControlSchema,
			wantFound: true,
			wantValue: true,
		},
		{
			name:      "objective complete false",
			text:      "Let's dig deeper.\n<control>{\"objective_complete\": false}</control>",
			schema:    TeachingControlSchema,
			wantFound: true,
			wantValue: false,
		},
		{
			name:      "block amid surrounding prose",
			text:      "Before <control>{\"prereq_complete\": true}</control> after.",
			schema:    RecapControlSchema,
			wantFound: true,
			wantValue: true,
		},
		{
			name:      "multiline json inside block",
			text:      "Done.\n<control>\n{\"prereq_complete\": true}\n</control>",
			schema:    RecapControlSchema,
			wantFound: true,
			wantValue: true,
		},
		{
			name:    "malformed json",
			text:    "<control>{objective_complete: yes}</control>",
			schema:  TeachingControlSchema,
			wantErr: true,
		},
		{
			name:    "unexpected key",
			text:    "<control>{\"finished\": true}</control>",
			schema:  TeachingControlSchema,
			wantErr: true,
		},
		{
			name:    "non-boolean value",
			text:    "<control>{\"objective_complete\": \"yes\"}</control>",
			schema:  TeachingControlSchema,
			wantErr: true,
		},
		{
			name:    "missing required key",
			text:    "<control>{}</control>",
			schema:  TeachingControlSchema,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			directive, found, err := ExtractControlBlock(tt.text, tt.schema)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got directive=%v found=%v", directive, found)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if found != tt.wantFound {
				t.Fatalf("found = %v, want %v", found, tt.wantFound)
			}
			if !found {
				return
			}
			key := tt.schema.Required[0]
			if directive[key] != tt.wantValue {
				t.Errorf("directive[%s] = %v, want %v", key, directive[key], tt.wantValue)
			}
		})
	}
}

func TestExtractControlBlockErrorTypes(t *testing.T) {
	_, _, err := ExtractControlBlock("<control>{nope}</control>", TeachingControlSchema)
	var parseErr *ControlParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("malformed JSON should yield ControlParseError, got %T", err)
	}

	_, _, err = ExtractControlBlock("<control>{\"bogus\": true}</control>", TeachingControlSchema)
	var validationErr *ControlValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("schema mismatch should yield ControlValidationError, got %T", err)
	}
}

func TestStripControlBlock(t *testing.T) {
	in := "Well done!\n<control>{\"objective_complete\": true}</control>"
	got := StripControlBlock(in)
	if got != "Well done!\n" {
		t.Errorf("StripControlBlock() = %q", got)
	}

	plain := "No directives here."
	if StripControlBlock(plain) != plain {
		t.Errorf("plain text should pass through unchanged")
	}
}

func TestReflectedSchemas(t *testing.T) {
	if len(TeachingControlSchema.Required) != 1 || TeachingControlSchema.Required[0] != "objective_complete" {
		t.Errorf("teaching schema required = %v", TeachingControlSchema.Required)
	}
	if len(RecapControlSchema.Required) != 1 || RecapControlSchema.Required[0] != "prereq_complete" {
		t.Errorf("recap schema required = %v", RecapControlSchema.Required)
	}
}
