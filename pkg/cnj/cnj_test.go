package cnj

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jrerrors "github.com/otherjamesbrown/judgeroute/pkg/errors"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ID
	}{
		{
			name: "punctuated",
			raw:  "1234567-89.2023.8.26.0100",
			want: ID{
				Raw:     "1234567-89.2023.8.26.0100",
				Digits:  "12345678920238260100",
				Query:   "12345678920230100",
				Display: "1234567-89.2023.8.26.0100",
				Forum:   "0100",
			},
		},
		{
			name: "digits with tabs",
			raw:  "\t00012345620218260576\t",
			want: ID{
				Raw:     "00012345620218260576",
				Digits:  "00012345620218260576",
				Query:   "00012345620210576",
				Display: "0001234-56.2021.8.26.0576",
				Forum:   "0576",
			},
		},
		{
			name: "infix digits inside the sequence number are kept",
			raw:  "0826123-45.2022.8.26.0001",
			want: ID{
				Raw:     "0826123-45.2022.8.26.0001",
				Digits:  "08261234520228260001",
				Query:   "08261234520220001",
				Display: "0826123-45.2022.8.26.0001",
				Forum:   "0001",
			},
		},
		{
			name: "query form",
			raw:  "12345678920230100",
			want: ID{
				Raw:     "12345678920230100",
				Digits:  "12345678920238260100",
				Query:   "12345678920230100",
				Display: "1234567-89.2023.8.26.0100",
				Forum:   "0100",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_ScenarioQueryDropsInfix(t *testing.T) {
	id, err := Normalize("1234567-89.2023.8.26.0100")
	require.NoError(t, err)

	assert.NotContains(t, id.Query, "826")
	assert.Equal(t, "0100", id.Forum)
	assert.Len(t, id.Forum, 4)
}

func TestNormalize_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"tabs only", "\t\t"},
		{"short", "1234567-89.2023"},
		{"eighteen digits", "123456789012345678"},
		{"too long", "123456789012345678901"},
		{"letters", "1234567-89.2023.8.26.010A"},
		{"other court", "1234567-89.2023.8.13.0100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw)
			require.Error(t, err)

			var malformed *jrerrors.MalformedIDError
			assert.ErrorAs(t, err, &malformed)
			assert.True(t, jrerrors.IsValidation(err))
		})
	}
}

func TestNormalizer_OtherCourt(t *testing.T) {
	n := Normalizer{Infix: "813"}

	id, err := n.Normalize("1234567-89.2023.8.13.0024")
	require.NoError(t, err)
	assert.Equal(t, "12345678920230024", id.Query)
	assert.Equal(t, "1234567-89.2023.8.13.0024", id.Display)

	_, err = Normalizer{Infix: "82"}.Normalize("1234567-89.2023.8.13.0024")
	assert.Error(t, err)
}

func TestNormalize_Idempotent(t *testing.T) {
	first, err := Normalize("1234567-89.2023.8.26.0100")
	require.NoError(t, err)

	second, err := Normalize(first.Query)
	require.NoError(t, err)

	assert.Equal(t, first.Query, second.Query)
	assert.Equal(t, first.Display, second.Display)
	assert.Equal(t, first.Forum, second.Forum)
	assert.Equal(t, first.Digits, second.Digits)
}
