package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/pricing"
)

// MaxTitleLength caps stored titles, in runes.
const MaxTitleLength = 512

// Prices are stored as NUMERIC(12,2): rounded to cents, below 1e10.
const (
	centsPerUnit = 100
	minPrice     = 0.01
	maxPrice     = 1e10
)

const (
	fieldStatus        = "status"
	fieldOriginalPrice = "original_price"
	fieldDiscountPrice = "discount_price"
	fieldInStock       = "in_stock"
	fieldTitle         = "title"
)

var reportFields = []string{fieldStatus, fieldOriginalPrice, fieldDiscountPrice, fieldInStock, fieldTitle}

// Report is a decoded crawl result. Each status has its own variant carrying
// only the fields legal for it.
type Report interface {
	Status() domain.HistoryStatus
}

// OKReport is a successfully parsed product page.
type OKReport struct {
	OriginalPrice *float64
	DiscountPrice *float64
	InStock       bool
	Title         string
}

// NotFoundReport means the page no longer exists.
type NotFoundReport struct{}

// AgeRestrictionReport means the page is behind an age gate.
type AgeRestrictionReport struct{}

// ChangeLocationReport means the crawler's region cannot see the page.
type ChangeLocationReport struct{}

// SkipReport means the crawler gave up without a verdict.
type SkipReport struct{}

func (OKReport) Status() domain.HistoryStatus             { return domain.StatusOK }
func (NotFoundReport) Status() domain.HistoryStatus       { return domain.StatusNotFound }
func (AgeRestrictionReport) Status() domain.HistoryStatus { return domain.StatusAgeRestriction }
func (ChangeLocationReport) Status() domain.HistoryStatus {
	return domain.StatusRequiredToChangeLocation
}
func (SkipReport) Status() domain.HistoryStatus { return domain.StatusSkip }

// Price is the resolved price of the report.
func (r OKReport) Price() float64 {
	return pricing.ResolvePrice(r.OriginalPrice, r.DiscountPrice)
}

// ParseReport decodes a JSON crawl result.
func ParseReport(data []byte) (Report, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, domain.NewValidationError("", domain.CodeInvalidField, "body must be a JSON object")
	}
	return DecodeReport(fields)
}

// DecodeReport builds a Report from already split JSON fields.
func DecodeReport(fields map[string]json.RawMessage) (Report, error) {
	for _, name := range sortedKeys(fields) {
		if !slices.Contains(reportFields, name) {
			return nil, domain.NewValidationError(name, domain.CodeUnknownField, "unknown field")
		}
	}

	raw, ok := present(fields, fieldStatus)
	if !ok {
		return nil, domain.NewValidationError(fieldStatus, domain.CodeMissingField, "is required")
	}
	var status domain.HistoryStatus
	if err := json.Unmarshal(raw, &status); err != nil || !status.Valid() {
		return nil, domain.NewValidationError(fieldStatus, domain.CodeInvalidField, "is not a known status")
	}

	if status != domain.StatusOK {
		for _, name := range []string{fieldOriginalPrice, fieldDiscountPrice} {
			if _, has := fields[name]; has {
				return nil, domain.NewValidationError(name, domain.CodeUnknownField,
					fmt.Sprintf("not allowed for status %s", status))
			}
		}
	}

	switch status {
	case domain.StatusNotFound:
		return NotFoundReport{}, nil
	case domain.StatusAgeRestriction:
		return AgeRestrictionReport{}, nil
	case domain.StatusRequiredToChangeLocation:
		return ChangeLocationReport{}, nil
	case domain.StatusSkip:
		return SkipReport{}, nil
	default:
		return decodeOK(fields)
	}
}

func decodeOK(fields map[string]json.RawMessage) (OKReport, error) {
	var r OKReport

	raw, ok := present(fields, fieldInStock)
	if !ok {
		return r, domain.NewValidationError(fieldInStock, domain.CodeMissingField, "is required")
	}
	if err := json.Unmarshal(raw, &r.InStock); err != nil {
		return r, domain.NewValidationError(fieldInStock, domain.CodeInvalidField, "must be a boolean")
	}

	raw, ok = present(fields, fieldTitle)
	if !ok {
		return r, domain.NewValidationError(fieldTitle, domain.CodeMissingField, "is required")
	}
	var title string
	if err := json.Unmarshal(raw, &title); err != nil {
		return r, domain.NewValidationError(fieldTitle, domain.CodeInvalidField, "must be a string")
	}
	if r.Title = normalizeTitle(title); r.Title == "" {
		return r, domain.NewValidationError(fieldTitle, domain.CodeMissingField, "must not be blank")
	}

	var err error
	if r.OriginalPrice, err = decodePrice(fields, fieldOriginalPrice); err != nil {
		return r, err
	}
	if r.DiscountPrice, err = decodePrice(fields, fieldDiscountPrice); err != nil {
		return r, err
	}

	if r.InStock && r.Price() == 0 {
		return r, domain.NewValidationError("", domain.CodeMissingPrices, "an in-stock product needs a price")
	}
	return r, nil
}

// decodePrice accepts a JSON number or a numeric string and rounds it to
// cents. Null and absent both mean no price.
func decodePrice(fields map[string]json.RawMessage, name string) (*float64, error) {
	raw, ok := present(fields, name)
	if !ok {
		return nil, nil
	}

	var value float64
	var text string
	switch {
	case json.Unmarshal(raw, &value) == nil:
	case json.Unmarshal(raw, &text) == nil:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, domain.NewValidationError(name, domain.CodeMustBeANumber, "must be a number")
		}
		value = parsed
	default:
		return nil, domain.NewValidationError(name, domain.CodeMustBeANumber, "must be a number")
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, domain.NewValidationError(name, domain.CodeMustBeANumber, "must be a number")
	}
	value = math.Round(value*centsPerUnit) / centsPerUnit
	if value < minPrice {
		return nil, domain.NewValidationError(name, domain.CodeMustBePositive, "must be positive")
	}
	if value >= maxPrice {
		return nil, domain.NewValidationError(name, domain.CodeInvalidField, "is too large")
	}
	return &value, nil
}

// present returns the raw value of name unless it is absent or null.
func present(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	raw, ok := fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

// normalizeTitle trims and NFC-normalizes title, then caps it at MaxTitleLength runes.
func normalizeTitle(title string) string {
	title = norm.NFC.String(strings.TrimSpace(title))
	if utf8.RuneCountInString(title) <= MaxTitleLength {
		return title
	}
	return strings.TrimSpace(string([]rune(title)[:MaxTitleLength]))
}

func sortedKeys(fields map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
