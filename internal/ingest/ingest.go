// Package ingest decodes vendor option-chain and price files into models.
// Files are JSON arrays or CSV with a header row.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/go-playground/validator/v10"

	apperrors "options-signals/internal/errors"
	"options-signals/internal/models"
)

// Format is an input file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// DetectFormat picks a format from a file name, defaulting to JSON.
func DetectFormat(name string) Format {
	if strings.HasSuffix(strings.ToLower(name), ".csv") {
		return FormatCSV
	}
	return FormatJSON
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// OptionalFloat is a number that may be absent. Empty CSV cells and JSON
// nulls decode as absent.
type OptionalFloat struct {
	p *float64
}

// Ptr returns the value, or nil when absent.
func (o OptionalFloat) Ptr() *float64 {
	return o.p
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OptionalFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.p = nil
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.p = &v
	return nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (o *OptionalFloat) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		o.p = nil
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	o.p = &v
	return nil
}

// ObservationRecord is one contract snapshot as delivered by a vendor.
type ObservationRecord struct {
	Symbol          string        `json:"symbol" csv:"symbol"`
	Expiration      string        `json:"expiration" csv:"expiration" validate:"required,datetime=2006-01-02"`
	DataDate        string        `json:"data_date" csv:"data_date" validate:"required,datetime=2006-01-02"`
	Type            string        `json:"type" csv:"type" validate:"required"`
	Strike          float64       `json:"strike" csv:"strike" validate:"gt=0"`
	OpenInterest    int64         `json:"open_interest" csv:"open_interest" validate:"gte=0"`
	Volume          int64         `json:"volume" csv:"volume" validate:"gte=0"`
	IV              OptionalFloat `json:"iv" csv:"iv"`
	Delta           OptionalFloat `json:"delta" csv:"delta"`
	Gamma           OptionalFloat `json:"gamma" csv:"gamma"`
	Vega            OptionalFloat `json:"vega" csv:"vega"`
	UnderlyingPrice OptionalFloat `json:"underlying_price" csv:"underlying_price"`
	Bid             OptionalFloat `json:"bid" csv:"bid"`
	Ask             OptionalFloat `json:"ask" csv:"ask"`
	Last            OptionalFloat `json:"last" csv:"last"`
	Mark            OptionalFloat `json:"mark" csv:"mark"`
	Mid             OptionalFloat `json:"mid" csv:"mid"`
	Close           OptionalFloat `json:"close" csv:"close"`
}

// CloseRecord is one daily bar of the underlying. Missing open, high and
// low default to the close.
type CloseRecord struct {
	Symbol string  `json:"symbol" csv:"symbol"`
	Date   string  `json:"date" csv:"date" validate:"required,datetime=2006-01-02"`
	Open   float64 `json:"open" csv:"open" validate:"gte=0"`
	High   float64 `json:"high" csv:"high" validate:"gte=0"`
	Low    float64 `json:"low" csv:"low" validate:"gte=0"`
	Close  float64 `json:"close" csv:"close" validate:"gt=0"`
}

type observationBatch struct {
	Rows []ObservationRecord `json:"rows" validate:"dive"`
}

type closeBatch struct {
	Rows []CloseRecord `json:"rows" validate:"dive"`
}

// DecodeObservations reads and validates observation records. Rows without
// a symbol column take defaultSymbol. The result is grouped by symbol.
func DecodeObservations(r io.Reader, format Format, defaultSymbol string) (map[string][]models.ContractObservation, error) {
	var batch observationBatch
	if err := decode(r, format, &batch.Rows); err != nil {
		return nil, err
	}
	if err := validate.Struct(&batch); err != nil {
		return nil, toValidationErrors(err)
	}

	out := make(map[string][]models.ContractObservation)
	var problems apperrors.ValidationErrors
	for i, rec := range batch.Rows {
		symbol := resolveSymbol(rec.Symbol, defaultSymbol)
		if symbol == "" {
			problems = append(problems, *apperrors.NewValidationError(
				fmt.Sprintf("rows[%d].symbol", i), "ERR_REQUIRED", nil, "symbol is required"))
			continue
		}
		o, err := rec.toModel(symbol)
		if err != nil {
			problems = append(problems, *apperrors.NewValidationError(
				fmt.Sprintf("rows[%d]", i), "ERR_INVALID", nil, err.Error()))
			continue
		}
		out[symbol] = append(out[symbol], o)
	}
	if len(problems) > 0 {
		return nil, problems
	}
	return out, nil
}

func (rec ObservationRecord) toModel(symbol string) (models.ContractObservation, error) {
	exp, err := models.ParseDate(rec.Expiration)
	if err != nil {
		return models.ContractObservation{}, err
	}
	dataDate, err := models.ParseDate(rec.DataDate)
	if err != nil {
		return models.ContractObservation{}, err
	}
	if exp.Before(dataDate) {
		return models.ContractObservation{}, fmt.Errorf("expiration %s is before data date %s", rec.Expiration, rec.DataDate)
	}
	typ, err := models.ParseOptionType(rec.Type)
	if err != nil {
		return models.ContractObservation{}, err
	}
	return models.ContractObservation{
		Symbol:          symbol,
		Expiration:      exp,
		DataDate:        dataDate,
		Type:            typ,
		Strike:          models.NewStrike(rec.Strike),
		OpenInterest:    rec.OpenInterest,
		Volume:          rec.Volume,
		IV:              rec.IV.Ptr(),
		Delta:           rec.Delta.Ptr(),
		Gamma:           rec.Gamma.Ptr(),
		Vega:            rec.Vega.Ptr(),
		UnderlyingPrice: rec.UnderlyingPrice.Ptr(),
		Quote: models.Quote{
			Bid:   rec.Bid.Ptr(),
			Ask:   rec.Ask.Ptr(),
			Last:  rec.Last.Ptr(),
			Mark:  rec.Mark.Ptr(),
			Mid:   rec.Mid.Ptr(),
			Close: rec.Close.Ptr(),
		},
	}, nil
}

// DecodeCloses reads and validates daily bars, grouped by symbol and sorted
// by trade date.
func DecodeCloses(r io.Reader, format Format, defaultSymbol string) (map[string][]models.DailyClose, error) {
	var batch closeBatch
	if err := decode(r, format, &batch.Rows); err != nil {
		return nil, err
	}
	if err := validate.Struct(&batch); err != nil {
		return nil, toValidationErrors(err)
	}

	out := make(map[string][]models.DailyClose)
	var problems apperrors.ValidationErrors
	for i, rec := range batch.Rows {
		symbol := resolveSymbol(rec.Symbol, defaultSymbol)
		if symbol == "" {
			problems = append(problems, *apperrors.NewValidationError(
				fmt.Sprintf("rows[%d].symbol", i), "ERR_REQUIRED", nil, "symbol is required"))
			continue
		}
		day, err := models.ParseDate(rec.Date)
		if err != nil {
			problems = append(problems, *apperrors.NewValidationError(
				fmt.Sprintf("rows[%d].date", i), "ERR_DATETIME", rec.Date, err.Error()))
			continue
		}
		c := models.DailyClose{
			Symbol:    symbol,
			TradeDate: day,
			Open:      orClose(rec.Open, rec.Close),
			High:      orClose(rec.High, rec.Close),
			Low:       orClose(rec.Low, rec.Close),
			Close:     rec.Close,
		}
		out[symbol] = append(out[symbol], c)
	}
	if len(problems) > 0 {
		return nil, problems
	}
	for _, closes := range out {
		sort.Slice(closes, func(i, j int) bool { return closes[i].TradeDate.Before(closes[j].TradeDate) })
	}
	return out, nil
}

func decode(r io.Reader, format Format, out interface{}) error {
	switch format {
	case FormatCSV:
		if err := gocsv.Unmarshal(r, out); err != nil {
			return apperrors.Wrap(apperrors.ErrInputValidation, "invalid csv: "+err.Error())
		}
		return nil
	case FormatJSON, "":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(out); err != nil {
			return apperrors.Wrap(apperrors.ErrInputValidation, "invalid json: "+err.Error())
		}
		return nil
	}
	return fmt.Errorf("%w: unsupported format %q", apperrors.ErrInputValidation, format)
}

func resolveSymbol(rowSymbol, defaultSymbol string) string {
	if s := strings.TrimSpace(rowSymbol); s != "" {
		return strings.ToUpper(s)
	}
	return strings.ToUpper(strings.TrimSpace(defaultSymbol))
}

func orClose(v, close float64) float64 {
	if v == 0 {
		return close
	}
	return v
}

func toValidationErrors(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.ValidationErrors{{Code: "ERR_UNKNOWN", Message: err.Error()}}
	}
	out := make(apperrors.ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		out = append(out, *apperrors.NewValidationError(
			field,
			"ERR_"+strings.ToUpper(fe.Tag()),
			fe.Value(),
			fmt.Sprintf("%s failed validation: %s", field, fe.Tag()),
		))
	}
	return out
}
