package domain

import (
	"math"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationQuery_Validate(t *testing.T) {
	tests := []struct {
		name      string
		query     LocationQuery
		wantField string
	}{
		{"name ok", NameQuery("London, GB"), ""},
		{"name untrimmed ok", LocationQuery{Kind: QueryByName, Text: "  Oslo "}, ""},
		{"name blank", LocationQuery{Kind: QueryByName, Text: "   "}, "text"},
		{"name empty", NameQuery(""), "text"},
		{"coords ok", CoordsQuery(40, -75), ""},
		{"coords at bounds", CoordsQuery(-90, 180), ""},
		{"lat too high", CoordsQuery(90.01, 0), "lat"},
		{"lat too low", CoordsQuery(-91, 0), "lat"},
		{"lon too high", CoordsQuery(0, 180.5), "lon"},
		{"lon too low", CoordsQuery(0, -181), "lon"},
		{"lat NaN", CoordsQuery(math.NaN(), 0), "lat"},
		{"missing kind", LocationQuery{Text: "London"}, "kind"},
		{"unknown kind", LocationQuery{Kind: "zip", Text: "10001"}, "kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			var invalid *InvalidInputError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.wantField, invalid.Field)
			assert.NotEmpty(t, invalid.Reason)
		})
	}
}

func TestNameQuery_Trims(t *testing.T) {
	q := NameQuery("\tParis, FR \n")
	assert.Equal(t, QueryByName, q.Kind)
	assert.Equal(t, "Paris, FR", q.Text)
	assert.Equal(t, "Paris, FR", q.String())
}

func TestCoordsQuery_String(t *testing.T) {
	assert.Equal(t, "40.0000,-75.0000", CoordsQuery(40, -75).String())
}

func TestParseLocationQuery(t *testing.T) {
	tests := []struct {
		name      string
		values    url.Values
		wantOK    bool
		wantQuery LocationQuery
		wantField string
	}{
		{"none", url.Values{}, false, LocationQuery{}, ""},
		{"blank location", url.Values{"location": {"  "}}, false, LocationQuery{}, ""},
		{"location", url.Values{"location": {" London, GB "}}, true, NameQuery("London, GB"), ""},
		{"location beats coords", url.Values{"location": {"Oslo"}, "lat": {"1"}, "lon": {"2"}}, true, NameQuery("Oslo"), ""},
		{"coords", url.Values{"lat": {"40.7"}, "lon": {"-74.0"}}, true, CoordsQuery(40.7, -74.0), ""},
		{"lat only", url.Values{"lat": {"40.7"}}, true, LocationQuery{}, "lon"},
		{"lon only", url.Values{"lon": {"40.7"}}, true, LocationQuery{}, "lat"},
		{"lat not a number", url.Values{"lat": {"north"}, "lon": {"2"}}, true, LocationQuery{}, "lat"},
		{"lon not a number", url.Values{"lat": {"1"}, "lon": {"east"}}, true, LocationQuery{}, "lon"},
		{"lat out of range", url.Values{"lat": {"123"}, "lon": {"2"}}, true, CoordsQuery(123, 2), "lat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, ok, err := ParseLocationQuery(tt.values)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantField != "" {
				var invalid *InvalidInputError
				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, tt.wantField, invalid.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, q)
		})
	}
}
