package oracle_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"oracle-broker/internal/oracle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateFee(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/fee", r.URL.Path)
		assert.Equal(t, "11", r.URL.Query().Get("model_id"))
		assert.Equal(t, "5000000", r.URL.Query().Get("gas_limit"))

		w.Header().Set("Content-Type", "application/json")
		_, err := w.Write([]byte(`{"fee": 150}`))
		assert.NoError(t, err)
	}))
	defer server.Close()

	client := oracle.NewHttpClient(server.URL)

	fee, err := client.EstimateFee(context.Background(), 11, 5_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), fee)
}

func TestEstimateFeeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oracle overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := oracle.NewHttpClient(server.URL)

	_, err := client.EstimateFee(context.Background(), 11, 5_000_000)
	assert.ErrorIs(t, err, oracle.ErrUnavailable)
}

func TestEstimateFeeUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // shut down before the call

	client := oracle.NewHttpClient(server.URL)

	_, err := client.EstimateFee(context.Background(), 11, 5_000_000)
	assert.ErrorIs(t, err, oracle.ErrUnavailable)
}

func TestRegister(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/requests", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var reg oracle.Registration
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reg))
		assert.Equal(t, uint64(11), reg.ModelId)
		assert.Equal(t, []byte("Hello World"), reg.Input)
		assert.Equal(t, "broker.example.com", reg.CallbackTarget)
		assert.Equal(t, uint64(5_000_000), reg.GasLimit)
		assert.Equal(t, uint64(250), reg.Payment)

		w.Header().Set("Content-Type", "application/json")
		_, err := w.Write([]byte(`{"request_id": 7}`))
		assert.NoError(t, err)
	}))
	defer server.Close()

	client := oracle.NewHttpClient(server.URL)

	requestId, err := client.Register(context.Background(), oracle.Registration{
		ModelId:        11,
		Input:          []byte("Hello World"),
		CallbackTarget: "broker.example.com",
		GasLimit:       5_000_000,
		Payment:        250,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), requestId)
}

func TestRegisterRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient payment", http.StatusPaymentRequired)
	}))
	defer server.Close()

	client := oracle.NewHttpClient(server.URL)

	_, err := client.Register(context.Background(), oracle.Registration{ModelId: 11, Payment: 1})
	assert.ErrorIs(t, err, oracle.ErrUnavailable)
}

func TestRegisterMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("not json"))
		assert.NoError(t, err)
	}))
	defer server.Close()

	client := oracle.NewHttpClient(server.URL)

	_, err := client.Register(context.Background(), oracle.Registration{ModelId: 11})
	assert.ErrorIs(t, err, oracle.ErrUnavailable)
}
