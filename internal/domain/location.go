package domain

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// QueryKind tells a name query from a coordinate query.
type QueryKind string

const (
	QueryByName   QueryKind = "name"
	QueryByCoords QueryKind = "coords"
)

// LocationQuery is what a user asks weather for: free text or a coordinate pair.
type LocationQuery struct {
	Kind QueryKind `json:"kind" validate:"required,oneof=name coords"`
	Text string    `json:"text,omitempty" validate:"required_if=Kind name"`
	Lat  float64   `json:"lat,omitempty" validate:"gte=-90,lte=90"`
	Lon  float64   `json:"lon,omitempty" validate:"gte=-180,lte=180"`
}

// NameQuery builds a query for free-text place names like "London, GB".
func NameQuery(text string) LocationQuery {
	return LocationQuery{Kind: QueryByName, Text: strings.TrimSpace(text)}
}

// CoordsQuery builds a query for a known coordinate pair.
func CoordsQuery(lat, lon float64) LocationQuery {
	return LocationQuery{Kind: QueryByCoords, Lat: lat, Lon: lon}
}

func (q LocationQuery) String() string {
	if q.Kind == QueryByCoords {
		return fmt.Sprintf("%.4f,%.4f", q.Lat, q.Lon)
	}
	return q.Text
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate reports the first constraint the query violates as an
// *InvalidInputError. Name text is checked after trimming.
func (q LocationQuery) Validate() error {
	q.Text = strings.TrimSpace(q.Text)
	if q.Kind == QueryByName {
		// Coordinates are meaningless for name queries.
		q.Lat, q.Lon = 0, 0
	}

	err := validate.Struct(q)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &InvalidInputError{Field: fe.Field(), Reason: describeViolation(fe)}
	}
	return &InvalidInputError{Field: "query", Reason: err.Error()}
}

func describeViolation(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "must not be empty"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// ParseLocationQuery reads a query from URL parameters: "location" for free
// text, or "lat" and "lon" together. It returns ok=false when the parameters
// carry no query at all. A returned query has already been validated.
func ParseLocationQuery(values url.Values) (query LocationQuery, ok bool, err error) {
	if text := strings.TrimSpace(values.Get("location")); text != "" {
		q := NameQuery(text)
		return q, true, q.Validate()
	}

	latStr := strings.TrimSpace(values.Get("lat"))
	lonStr := strings.TrimSpace(values.Get("lon"))
	if latStr == "" && lonStr == "" {
		return LocationQuery{}, false, nil
	}
	if latStr == "" {
		return LocationQuery{}, true, &InvalidInputError{Field: "lat", Reason: "must be provided with lon"}
	}
	if lonStr == "" {
		return LocationQuery{}, true, &InvalidInputError{Field: "lon", Reason: "must be provided with lat"}
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return LocationQuery{}, true, &InvalidInputError{Field: "lat", Reason: "must be a number"}
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return LocationQuery{}, true, &InvalidInputError{Field: "lon", Reason: "must be a number"}
	}

	q := CoordsQuery(lat, lon)
	return q, true, q.Validate()
}
