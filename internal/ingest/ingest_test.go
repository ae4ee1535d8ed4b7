package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "options-signals/internal/errors"
	"options-signals/internal/models"
	ts "options-signals/internal/testsupport"
)

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatCSV, DetectFormat("chain.CSV"))
	assert.Equal(t, FormatJSON, DetectFormat("chain.json"))
	assert.Equal(t, FormatJSON, DetectFormat("-"))
}

func TestDecodeObservationsJSON(t *testing.T) {
	input := `[
		{"expiration": "2024-03-15", "data_date": "2024-03-08", "type": "C", "strike": 502.5,
		 "open_interest": 1200, "volume": 340, "gamma": 0.021, "underlying_price": 500.1, "bid": 1.2, "ask": 1.3},
		{"symbol": "qqq", "expiration": "2024-03-15", "data_date": "2024-03-08", "type": "put", "strike": 430,
		 "open_interest": 50, "volume": 0, "iv": null}
	]`

	got, err := DecodeObservations(strings.NewReader(input), FormatJSON, "spy")
	require.NoError(t, err)
	require.Len(t, got["SPY"], 1)
	require.Len(t, got["QQQ"], 1)

	spy := got["SPY"][0]
	assert.Equal(t, models.OptionCall, spy.Type)
	assert.Equal(t, models.NewStrike(502.5), spy.Strike)
	assert.Equal(t, ts.Date(t, "2024-03-15"), spy.Expiration)
	assert.Equal(t, ts.Date(t, "2024-03-08"), spy.DataDate)
	require.NotNil(t, spy.Gamma)
	assert.InDelta(t, 0.021, *spy.Gamma, 1e-12)
	assert.Nil(t, spy.IV)
	require.NotNil(t, spy.Quote.Ask)
	assert.InDelta(t, 1.3, *spy.Quote.Ask, 1e-12)

	qqq := got["QQQ"][0]
	assert.Equal(t, models.OptionPut, qqq.Type)
	assert.Nil(t, qqq.IV)
}

func TestDecodeObservationsCSV(t *testing.T) {
	input := "expiration,data_date,type,strike,open_interest,volume,iv,gamma\n" +
		"2024-03-15,2024-03-08,call,500,100,10,0.18,\n" +
		"2024-03-15,2024-03-08,put,500,80,5,,0.02\n"

	got, err := DecodeObservations(strings.NewReader(input), FormatCSV, "SPY")
	require.NoError(t, err)
	rows := got["SPY"]
	require.Len(t, rows, 2)

	require.NotNil(t, rows[0].IV)
	assert.InDelta(t, 0.18, *rows[0].IV, 1e-12)
	assert.Nil(t, rows[0].Gamma)
	assert.Nil(t, rows[1].IV)
	require.NotNil(t, rows[1].Gamma)
	assert.Equal(t, int64(80), rows[1].OpenInterest)
}

func TestDecodeObservationsRejectsBadRows(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{
			name:  "bad date",
			input: `[{"expiration": "15/03/2024", "data_date": "2024-03-08", "type": "call", "strike": 500}]`,
			field: "rows[0].expiration",
		},
		{
			name:  "non-positive strike",
			input: `[{"expiration": "2024-03-15", "data_date": "2024-03-08", "type": "call", "strike": 0}]`,
			field: "rows[0].strike",
		},
		{
			name:  "negative volume",
			input: `[{"expiration": "2024-03-15", "data_date": "2024-03-08", "type": "call", "strike": 1, "volume": -1}]`,
			field: "rows[0].volume",
		},
		{
			name:  "expired before observation",
			input: `[{"expiration": "2024-03-01", "data_date": "2024-03-08", "type": "call", "strike": 1}]`,
			field: "rows[0]",
		},
		{
			name:  "unknown type",
			input: `[{"expiration": "2024-03-15", "data_date": "2024-03-08", "type": "straddle", "strike": 1}]`,
			field: "rows[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeObservations(strings.NewReader(tt.input), FormatJSON, "SPY")
			require.Error(t, err)

			var verrs apperrors.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Contains(t, verrs.Fields(), tt.field)
			assert.ErrorIs(t, err, apperrors.ErrInputValidation)
		})
	}
}

func TestDecodeObservationsRequiresSymbol(t *testing.T) {
	input := `[{"expiration": "2024-03-15", "data_date": "2024-03-08", "type": "call", "strike": 1}]`
	_, err := DecodeObservations(strings.NewReader(input), FormatJSON, "")

	var verrs apperrors.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, []string{"rows[0].symbol"}, verrs.Fields())
}

func TestDecodeObservationsUnknownField(t *testing.T) {
	input := `[{"expiration": "2024-03-15", "data_date": "2024-03-08", "type": "call", "strike": 1, "oi": 3}]`
	_, err := DecodeObservations(strings.NewReader(input), FormatJSON, "SPY")
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}

func TestDecodeCloses(t *testing.T) {
	input := `[
		{"date": "2024-03-08", "close": 510.2},
		{"date": "2024-03-07", "open": 505, "high": 512, "low": 504, "close": 508}
	]`

	got, err := DecodeCloses(strings.NewReader(input), FormatJSON, "SPY")
	require.NoError(t, err)
	closes := got["SPY"]
	require.Len(t, closes, 2)

	assert.Equal(t, ts.Date(t, "2024-03-07"), closes[0].TradeDate)
	assert.Equal(t, 512.0, closes[0].High)
	assert.Equal(t, 510.2, closes[1].Open)
	assert.Equal(t, 510.2, closes[1].Low)
}

func TestDecodeClosesCSV(t *testing.T) {
	input := "symbol,date,open,high,low,close\n" +
		"SPY,2024-03-08,508,512,507,510\n" +
		"QQQ,2024-03-08,440,445,439,443\n"

	got, err := DecodeCloses(strings.NewReader(input), FormatCSV, "")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 443.0, got["QQQ"][0].Close)
}

func TestDecodeClosesRejectsZeroClose(t *testing.T) {
	_, err := DecodeCloses(strings.NewReader(`[{"date": "2024-03-08", "close": 0}]`), FormatJSON, "SPY")

	var verrs apperrors.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, []string{"rows[0].close"}, verrs.Fields())
}
