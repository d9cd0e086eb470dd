package chainweb

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "mainnet01")
	return c
}

func TestClientCut(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chainweb/0.0/mainnet01/cut", r.URL.Path)
		io.WriteString(w, `{"hashes":{"0":{"hash":"h0","height":100}}}`)
	})

	cut, err := c.Cut(context.TODO())
	require.NoError(t, err)
	require.Equal(t, uint64(100), cut.Hashes["0"].Height)
}

func TestClientHeaderBranch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chainweb/0.0/mainnet01/chain/3/header/branch", r.URL.Path)
		require.Equal(t, "10", r.URL.Query().Get("minheight"))
		require.Equal(t, "20", r.URL.Query().Get("maxheight"))
		io.WriteString(w, `{"items":[{"hash":"h1","chainId":3,"height":10}]}`)
	})

	headers, err := c.HeaderBranch(context.TODO(), 3, 10, 20)
	require.NoError(t, err)
	require.Len(t, headers, 1)
	require.Equal(t, "h1", headers[0].Hash)
}

func TestClientPayloadWithOutputs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chainweb/0.0/mainnet01/chain/1/payload/abc/outputs", r.URL.Path)
		io.WriteString(w, `{"minerData":"","coinbase":"","transactions":[]}`)
	})

	payload, err := c.PayloadWithOutputs(context.TODO(), 1, "abc")
	require.NoError(t, err)
	require.NotNil(t, payload)
}

func TestClientPactLocal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chainweb/0.0/mainnet01/chain/2/pact/api/v1/local", r.URL.Path)
		io.WriteString(w, `{"result":{"status":"success","data":{}}}`)
	})

	out, err := c.PactLocal(context.TODO(), 2, []byte(`{"cmd":"x"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"result":{"status":"success","data":{}}}`, string(out))
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	// RetryMax=0 so a non-retryable-by-test-design 400 response (which
	// retryablehttp itself treats as non-retryable) surfaces immediately.
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 0
	c := &Client{baseURL: srv.URL, network: "mainnet01", http: rc}

	_, err := c.Cut(context.TODO())
	require.Error(t, err)
}
