package blockclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Austin-Williams/cid-accumulator-client/cid"
)

func TestCapabilityGating(t *testing.T) {
	c := New(Options{GatewayURL: "http://example"})
	assert.False(t, c.CanPut())
	assert.False(t, c.CanPin())
	assert.False(t, c.CanProvide())

	c = New(Options{GatewayURL: "http://example", WriteURL: "http://example/write"})
	assert.True(t, c.CanPut())
	assert.False(t, c.CanPin())

	c = New(Options{GatewayURL: "http://example", WriteURL: "http://example/write", PinEndpoint: "http://example/pin"})
	assert.True(t, c.CanPin())
	assert.False(t, c.CanProvide())

	c = New(Options{
		GatewayURL: "http://example", WriteURL: "http://example/write",
		PinEndpoint: "http://example/pin", ProvideEndpoint: "http://example/provide",
	})
	assert.True(t, c.CanProvide())
}

func TestGetVerifiesCID(t *testing.T) {
	block, err := cid.EncodeLeaf([]byte("hello"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(block.Encoded)
	}))
	defer srv.Close()

	c := New(Options{GatewayURL: srv.URL})
	got, err := c.Get(context.Background(), block.Cid)
	require.NoError(t, err)
	assert.Equal(t, block.Encoded, got)
}

func TestGetRejectsMismatchedCID(t *testing.T) {
	block, err := cid.EncodeLeaf([]byte("hello"))
	require.NoError(t, err)
	other, err := cid.EncodeLeaf([]byte("goodbye"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(other.Encoded)
	}))
	defer srv.Close()

	c := New(Options{GatewayURL: srv.URL})
	_, err = c.Get(context.Background(), block.Cid)
	require.Error(t, err)
}

func TestGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Options{GatewayURL: srv.URL})
	_, err := c.Get(context.Background(), cid.NullCID)
	require.Error(t, err)
}

func TestPutTriggersPinOnSuccess(t *testing.T) {
	block, err := cid.EncodeLeaf([]byte("hello"))
	require.NoError(t, err)

	pinned := make(chan string, 1)

	writeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer writeSrv.Close()

	pinSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		pinned <- string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer pinSrv.Close()

	c := New(Options{WriteURL: writeSrv.URL, PinEndpoint: pinSrv.URL, PinMinDelay: 0})
	err = c.Put(context.Background(), block.Cid, block.Encoded)
	require.NoError(t, err)

	select {
	case body := <-pinned:
		assert.Contains(t, body, block.Cid.String())
	default:
		t.Fatal("pin endpoint was never called")
	}
}

func TestPutRejectsMismatchedCID(t *testing.T) {
	c := New(Options{WriteURL: "http://example/write"})
	other, _ := cid.EncodeLeaf([]byte("wrong"))
	err := c.Put(context.Background(), other.Cid, []byte("not matching"))
	require.Error(t, err)
}

func TestPinBreakerDisablesAfterThreshold(t *testing.T) {
	var calls int
	pinSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer pinSrv.Close()
	writeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer writeSrv.Close()

	c := New(Options{WriteURL: writeSrv.URL, PinEndpoint: pinSrv.URL, PinMinDelay: 0, PinFailureThreshold: 2})

	block, _ := cid.EncodeLeaf([]byte("x"))
	for i := 0; i < 5; i++ {
		_ = c.Put(context.Background(), block.Cid, block.Encoded)
	}

	assert.True(t, c.disabled.Load())
	assert.LessOrEqual(t, calls, 3) // breaker trips before all 5 pins reach the server
}
