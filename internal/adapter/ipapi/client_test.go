package ipapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/weather-dashboard-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClient(baseURL, 2*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLocate_PublicIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/8.8.8.8", r.URL.Path)
		assert.Equal(t, fields, r.URL.Query().Get("fields"))
		_, _ = io.WriteString(w, `{"status":"success","lat":37.4,"lon":-122.1,"city":"Mountain View","countryCode":"US"}`)
	}))
	defer srv.Close()

	q, err := testClient(srv.URL).Locate(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, domain.CoordsQuery(37.4, -122.1), q)
}

func TestLocate_PrivateIPUsesServerAddress(t *testing.T) {
	for _, ip := range []string{"10.0.0.7", "127.0.0.1", "::1", "", "not-an-ip"} {
		t.Run(ip, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/json/", r.URL.Path)
				_, _ = io.WriteString(w, `{"status":"success","lat":1,"lon":2}`)
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).Locate(context.Background(), ip)
			require.NoError(t, err)
		})
	}
}

func TestLocate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"fail status", http.StatusOK, `{"status":"fail","message":"reserved range"}`, "reserved range"},
		{"fail without message", http.StatusOK, `{"status":"fail"}`, "unknown failure"},
		{"http error", http.StatusTooManyRequests, ``, "status 429"},
		{"bad json", http.StatusOK, `{`, "decode"},
		{"bad coordinates", http.StatusOK, `{"status":"success","lat":100,"lon":0}`, "bad coordinates"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).Locate(context.Background(), "8.8.8.8")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
