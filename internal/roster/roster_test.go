package roster

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/model"
)

func named(names ...string) []model.Horse {
	out := make([]model.Horse, len(names))
	for i, n := range names {
		out[i] = model.Horse{Name: n}
	}
	return out
}

func TestCheckDuplicateNames(t *testing.T) {
	tests := []struct {
		name     string
		horses   []model.Horse
		wantErr  bool
		wantName string
	}{
		{name: "distinct names", horses: named("Star", "Comet")},
		{name: "case and whitespace collide", horses: named("Star", " star "), wantErr: true, wantName: "star"},
		{name: "blank names are ignored", horses: named("", "  ", "")},
		{name: "empty roster", horses: nil},
		{name: "first collision in order wins", horses: named("Comet", "Star", "STAR", "comet"), wantErr: true, wantName: "STAR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckDuplicateNames(tt.horses)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation))
			assert.Contains(t, err.Error(), tt.wantName)
		})
	}
}

func TestCheckPhones(t *testing.T) {
	tests := []struct {
		name    string
		horse   model.Horse
		wantErr bool
	}{
		{name: "formatted ten digits", horse: model.Horse{OwnerContact: "555-123-4567"}},
		{name: "raw ten digits", horse: model.Horse{VetContact: "5551234567"}},
		{name: "punctuated ten digits", horse: model.Horse{EmergencyContact: "(555) 123 4567"}},
		{name: "all empty", horse: model.Horse{}},
		{name: "five digits", horse: model.Horse{OwnerContact: "12345"}, wantErr: true},
		{name: "eleven digits", horse: model.Horse{VetContact: "1-555-123-4567"}, wantErr: true},
		{name: "letters only count as zero digits", horse: model.Horse{EmergencyContact: "call barn"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPhones([]model.Horse{tt.horse})
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, "Phone numbers must be 10 digits.", err.Error())
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidate_NamesCheckedBeforePhones(t *testing.T) {
	horses := []model.Horse{
		{Name: "Star", OwnerContact: "123"},
		{Name: "star"},
	}
	err := Validate(horses)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "star")
}

func TestFormatPhone(t *testing.T) {
	tests := []struct{ in, want string }{
		{"555-123-4567", "555-123-4567"},
		{"5551234567", "555-123-4567"},
		{"(555) 123.4567", "555-123-4567"},
		{"", ""},
		{"12345", "12345"},
	}
	for _, tt := range tests {
		if got := FormatPhone(tt.in); got != tt.want {
			t.Errorf("FormatPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	h := Normalize(model.Horse{
		Name:             "Star",
		OwnerContact:     "5551234567",
		EmergencyContact: "",
		VetContact:       "555 987 6543",
	})
	assert.Equal(t, "Star", h.Name)
	assert.Equal(t, "555-123-4567", h.OwnerContact)
	assert.Equal(t, "", h.EmergencyContact)
	assert.Equal(t, "555-987-6543", h.VetContact)
}
