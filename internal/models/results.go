package models

import (
	"encoding/json"
	"time"
)

// StrikeExposure is one row of the per-strike GEX table.
type StrikeExposure struct {
	Strike          Strike   `json:"strike"`
	NetGEX          float64  `json:"net_gex"`
	CallOIDelta     int64    `json:"call_oi_delta"`
	PutOIDelta      int64    `json:"put_oi_delta"`
	CallOIDeltaPct  *float64 `json:"call_oi_delta_pct"`
	PutOIDeltaPct   *float64 `json:"put_oi_delta_pct"`
	CallVolDelta    int64    `json:"call_vol_delta"`
	PutVolDelta     int64    `json:"put_vol_delta"`
	CallVolDeltaPct *float64 `json:"call_vol_delta_pct"`
	PutVolDeltaPct  *float64 `json:"put_vol_delta_pct"`
	CallOIWoW       int64    `json:"call_oi_wow"`
	PutOIWoW        int64    `json:"put_oi_wow"`
	CallVolWoW      int64    `json:"call_vol_wow"`
	PutVolWoW       int64    `json:"put_vol_wow"`
}

// GammaExposureResult is the full GEX payload for (symbol, timeframe, data date).
type GammaExposureResult struct {
	Symbol           string           `json:"symbol"`
	Timeframe        string           `json:"timeframe"`
	DataDate         time.Time        `json:"data_date"`
	DataAgeDays      int              `json:"data_age_days"`
	HVL              float64          `json:"hvl"`
	CallResistance   *float64         `json:"call_resistance"`
	CallWall2        *float64         `json:"call_wall_2"`
	CallWall3        *float64         `json:"call_wall_3"`
	PutSupport       *float64         `json:"put_support"`
	PutWall2         *float64         `json:"put_wall_2"`
	PutWall3         *float64         `json:"put_wall_3"`
	CallOITotal      int64            `json:"call_open_interest_total"`
	PutOITotal       int64            `json:"put_open_interest_total"`
	CallInterestPct  float64          `json:"call_interest_percentage"`
	PutInterestPct   float64          `json:"put_interest_percentage"`
	CallVolumeTotal  int64            `json:"call_volume_total"`
	PutVolumeTotal   int64            `json:"put_volume_total"`
	PCRVolume        *float64         `json:"pcr_volume"`
	TotalOIDelta     int64            `json:"total_oi_delta"`
	TotalVolumeDelta int64            `json:"total_volume_delta"`
	StrikeData       []StrikeExposure `json:"strike_data"`
	RegimeStrength   *float64         `json:"regime_strength"`
	GammaSign        int              `json:"gamma_sign"`
}

// MarshalJSON writes data_date as YYYY-MM-DD.
func (r GammaExposureResult) MarshalJSON() ([]byte, error) {
	type payload GammaExposureResult
	return json.Marshal(struct {
		payload
		DataDate string `json:"data_date"`
	}{payload(r), r.DataDate.Format(DateLayout)})
}

// UnmarshalJSON reads data_date as YYYY-MM-DD.
func (r *GammaExposureResult) UnmarshalJSON(data []byte) error {
	type payload GammaExposureResult
	aux := struct {
		*payload
		DataDate string `json:"data_date"`
	}{payload: (*payload)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d, err := ParseDate(aux.DataDate)
	if err != nil {
		return err
	}
	r.DataDate = d
	return nil
}

// ExpiryDeltaExposure is the dealer delta exposure of one expiration.
type ExpiryDeltaExposure struct {
	Symbol     string    `json:"symbol"`
	DataDate   time.Time `json:"data_date"`
	Expiration time.Time `json:"expiration"`
	DEX        float64   `json:"dex"`
}

// UnusualActivityMeta holds the supporting numbers of an unusual-activity flag.
type UnusualActivityMeta struct {
	CallVolume    int64    `json:"call_volume"`
	PutVolume     int64    `json:"put_volume"`
	CallPremium   *float64 `json:"call_premium,omitempty"`
	PutPremium    *float64 `json:"put_premium,omitempty"`
	TotalPremium  *float64 `json:"total_premium,omitempty"`
	BaselineMean  float64  `json:"baseline_mean"`
	BaselineStd   float64  `json:"baseline_std"`
	HistoryPoints int      `json:"history_points"`
}

// UnusualActivityFlag is a strike whose volume crossed the flag threshold.
type UnusualActivityFlag struct {
	Symbol       string              `json:"symbol"`
	DataDate     time.Time           `json:"data_date"`
	Expiration   time.Time           `json:"exp_date"`
	Strike       Strike              `json:"strike"`
	TotalVolume  int64               `json:"total_volume"`
	OpenInterest int64               `json:"open_interest"`
	ZScore       float64             `json:"z_score"`
	VolOI        *float64            `json:"vol_oi"`
	Meta         UnusualActivityMeta `json:"meta"`
}

// PinCluster is a scored open-interest cluster near spot.
type PinCluster struct {
	Strike           Strike  `json:"strike"`
	Density          float64 `json:"density"`
	DistanceFromSpot float64 `json:"distance_from_spot"`
	Score            float64 `json:"score"`
}

// ExpiryPressureRecord is the pin-risk summary of one expiration.
type ExpiryPressureRecord struct {
	Symbol     string       `json:"symbol"`
	DataDate   time.Time    `json:"data_date"`
	Expiration time.Time    `json:"exp_date"`
	Spot       float64      `json:"spot"`
	PinScore   int          `json:"pin_score"`
	Clusters   []PinCluster `json:"clusters"`
	MaxPain    *float64     `json:"max_pain"`
}

// Corridor is a run of strikes with little smoothed gamma.
type Corridor struct {
	From     float64 `json:"from"`
	To       float64 `json:"to"`
	WidthN   int     `json:"width_n"`
	Strength float64 `json:"strength"`
}

// BlindSpotRecord lists the gamma corridors of one expiration.
type BlindSpotRecord struct {
	Symbol     string     `json:"symbol"`
	DataDate   time.Time  `json:"data_date"`
	Expiration time.Time  `json:"exp_date"`
	Corridors  []Corridor `json:"corridors"`
}

// SeasonalityRecord summarises calendar-anchored forward returns.
// Reason is set when the record is neutral.
type SeasonalityRecord struct {
	Symbol          string    `json:"symbol"`
	DataDate        time.Time `json:"data_date"`
	D1              *float64  `json:"d1"`
	D2              *float64  `json:"d2"`
	D3              *float64  `json:"d3"`
	D4              *float64  `json:"d4"`
	D5              *float64  `json:"d5"`
	Cum5            *float64  `json:"cum5"`
	ZScore          *float64  `json:"z_score"`
	Anchors         int       `json:"anchors"`
	BaselineSamples int       `json:"baseline_samples"`
	BaselineMean    *float64  `json:"baseline_mean"`
	BaselineStd     *float64  `json:"baseline_std"`
	Reason          string    `json:"reason,omitempty"`
}

// TermPoint is the ATM implied volatility of one expiration.
type TermPoint struct {
	Expiration time.Time `json:"expiration"`
	DTE        int       `json:"dte"`
	ATMIV      float64   `json:"atm_iv"`
	Source     string    `json:"source"`
}

// VolMetricsRecord holds the term structure and variance risk premium of one date.
type VolMetricsRecord struct {
	Symbol        string      `json:"symbol"`
	DataDate      time.Time   `json:"data_date"`
	TermStructure []TermPoint `json:"term_structure"`
	IV1M          *float64    `json:"iv_1m"`
	RV20          *float64    `json:"rv_20"`
	VRP           *float64    `json:"vrp"`
	VRPZScore     *float64    `json:"vrp_z"`
	Reason        string      `json:"reason,omitempty"`
}

// SymbolResults is everything computed for a symbol on one data date.
// It is persisted as a unit.
type SymbolResults struct {
	Symbol         string
	DataDate       time.Time
	GammaExposure  []GammaExposureResult
	DeltaExposure  []ExpiryDeltaExposure
	UnusualFlags   []UnusualActivityFlag
	ExpiryPressure []ExpiryPressureRecord
	BlindSpots     []BlindSpotRecord
	Seasonality    *SeasonalityRecord
	VolMetrics     *VolMetricsRecord
}
