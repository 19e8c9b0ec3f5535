package bitunix

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// venueServer answers every request with the given venue response code and
// records the last decoded request body.
type venueServer struct {
	*httptest.Server
	lastBody map[string]any
}

func newVenueServer(code int, msg string) *venueServer {
	vs := &venueServer{}
	vs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		vs.lastBody = body
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg, "data": map[string]any{}})
	}))
	return vs
}

func TestSetLeverage(t *testing.T) {
	tests := []struct {
		name      string
		venueCode int
		wantErr   bool
	}{
		{"success", 0, false},
		{"already_set_34002_is_non_fatal", 34002, false},
		{"mode_conflict_10007_is_non_fatal", 10007, false},
		{"genuine_rejection_surfaces", 20001, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := newVenueServer(tt.venueCode, tt.name)
			defer vs.Close()

			c := NewREST("k", "s", vs.URL, time.Second)
			err := c.SetLeverage("BTCUSDT", 20)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSetMarginMode_IsolationSendsMarginCoin(t *testing.T) {
	vs := newVenueServer(0, "")
	defer vs.Close()

	c := NewREST("k", "s", vs.URL, time.Second)
	require.NoError(t, c.SetMarginMode("BTCUSDT", "ISOLATION"))
	assert.Equal(t, "USDT", vs.lastBody["marginCoin"])

	require.NoError(t, c.SetMarginMode("BTCUSDT", "CROSS"))
	_, present := vs.lastBody["marginCoin"]
	assert.False(t, present, "marginCoin only applies to isolated margin")
}

func TestVenueCode(t *testing.T) {
	code, ok := venueCode(fmt.Errorf("venue_validation: 34002 already set"))
	assert.True(t, ok)
	assert.Equal(t, 34002, code)

	_, ok = venueCode(fmt.Errorf("transient_io: connection reset"))
	assert.False(t, ok)

	_, ok = venueCode(nil)
	assert.False(t, ok)
}
