package currency

import (
	"testing"

	"digitlotto/domain/entities"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSmallestUnit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "empty string", input: "", want: "0"},
		{name: "zero", input: "0", want: "0"},
		{name: "one coin", input: "1", want: "1000000000000000000"},
		{name: "fraction", input: "0.5", want: "500000000000000000"},
		{name: "smallest unit", input: "0.000000000000000001", want: "1"},
		{name: "truncates extra digits", input: "0.0000000000000000019", want: "1"},
		{name: "truncates below one unit", input: "0.0000000000000000009", want: "0"},
		{name: "large amount", input: "123456789.123456789", want: "123456789123456789000000000"},
		{name: "surrounding whitespace", input: " 2.25 ", want: "2250000000000000000"},
		{name: "not a number", input: "abc", wantErr: true},
		{name: "two decimal points", input: "1.2.3", wantErr: true},
		{name: "negative", input: "-5", wantErr: true},
		{name: "explicit plus sign", input: "+5", wantErr: true},
		{name: "exponent notation", input: "1e3", wantErr: true},
		{name: "lone decimal point", input: ".", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ToSmallestUnit(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, entities.IsCode(err, entities.ErrCodeInvalidAmount))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestToHuman(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0", ToHuman(decimal.Zero))
	assert.Equal(t, "1", ToHuman(decimal.RequireFromString("1000000000000000000")))
	assert.Equal(t, "0.5", ToHuman(decimal.RequireFromString("500000000000000000")))
	assert.Equal(t, "0.000000000000000001", ToHuman(decimal.NewFromInt(1)))
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"0",
		"1",
		"10",
		"0.0001",
		"9.9999",
		"42.123456789012345678",
		"1000000",
		"0.000000000000000001",
	}

	for _, input := range inputs {
		units, err := ToSmallestUnit(input)
		require.NoError(t, err)
		assert.Equal(t, input, ToHuman(units), "round trip of %q", input)
	}
}
