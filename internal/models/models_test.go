package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in      string
		want    Price
		wantErr bool
	}{
		{in: "19.99", want: 1999},
		{in: " 5 ", want: 500},
		{in: "0", want: 0},
		{in: "0.005", want: 1},
		{in: "12.3", want: 1230},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
		{in: "NaN", wantErr: true},
		{in: "Inf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePrice(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPrice)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPriceString(t *testing.T) {
	assert.Equal(t, "19.99", Price(1999).String())
	assert.Equal(t, "0.05", Price(5).String())
	assert.Equal(t, "$1200.00", Price(120000).Label())
}

func TestIDJSON(t *testing.T) {
	big := ID(18446744073709551615)

	data, err := json.Marshal(struct {
		ID ID `json:"id"`
	}{ID: big})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"18446744073709551615"}`, string(data))

	var fromString, fromNumber ID
	require.NoError(t, json.Unmarshal([]byte(`"42"`), &fromString))
	require.NoError(t, json.Unmarshal([]byte(`42`), &fromNumber))
	assert.Equal(t, ID(42), fromString)
	assert.Equal(t, ID(42), fromNumber)

	var bad ID
	assert.Error(t, json.Unmarshal([]byte(`"-3"`), &bad))
}

func TestProductTarget(t *testing.T) {
	create := ProductUpsert{Name: "Soap"}.Target()
	assert.Equal(t, UpsertCreate, create.Kind())
	_, ok := create.ID()
	assert.False(t, ok)

	update := ProductUpsert{ProductID: ID(7).Ptr()}.Target()
	id, ok := update.ID()
	assert.True(t, ok)
	assert.Equal(t, ID(7), id)
	assert.Equal(t, "update", update.Kind().String())
}
