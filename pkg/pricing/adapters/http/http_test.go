package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantdesk/agentmem/pkg/errors"
)

func TestNewClient(t *testing.T) {
	t.Run("empty base URL rejected", func(t *testing.T) {
		_, err := NewClient(Config{})
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("trailing slash trimmed", func(t *testing.T) {
		client, err := NewClient(Config{BaseURL: "http://localhost:8080/"})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080", client.baseURL)
	})
}

func TestCurrentPrice(t *testing.T) {
	ctx := context.Background()

	t.Run("returns price from API", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/kline/price", r.URL.Path)
			assert.Equal(t, "crypto", r.URL.Query().Get("market"))
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"code":0,"msg":"ok","data":{"price":64250.5}}`))
		}))
		defer server.Close()

		client, err := NewClient(Config{BaseURL: server.URL})
		require.NoError(t, err)

		price, err := client.CurrentPrice(ctx, "crypto", "BTCUSDT")
		require.NoError(t, err)
		assert.Equal(t, 64250.5, price)
	})

	t.Run("missing arguments rejected", func(t *testing.T) {
		client, err := NewClient(Config{BaseURL: "http://localhost:8080"})
		require.NoError(t, err)

		_, err = client.CurrentPrice(ctx, "", "BTCUSDT")
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
		_, err = client.CurrentPrice(ctx, "crypto", "")
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	unavailableCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "API error code",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"code":1,"msg":"symbol not found"}`))
			},
		},
		{
			name: "missing price field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"code":0,"msg":"ok","data":{}}`))
			},
		},
		{
			name: "missing data object",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"code":0,"msg":"ok"}`))
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			},
		},
		{
			name: "server error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
	}

	for _, tc := range unavailableCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			client, err := NewClient(Config{BaseURL: server.URL})
			require.NoError(t, err)

			_, err = client.CurrentPrice(ctx, "crypto", "BTCUSDT")
			assert.ErrorIs(t, err, errors.ErrPriceUnavailable)
		})
	}

	t.Run("unreachable server", func(t *testing.T) {
		client, err := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
		require.NoError(t, err)

		_, err = client.CurrentPrice(ctx, "crypto", "BTCUSDT")
		assert.ErrorIs(t, err, errors.ErrPriceUnavailable)
	})
}
