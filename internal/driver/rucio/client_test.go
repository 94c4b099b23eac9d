package rucio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iddsorg/idds/internal/agent/transformer"
)

func TestGetMetadataReturnsDIDFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/dids/tests/ds.001/meta", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"bytes": 2048, "length": 4, "is_open": true, "did_type": "DATASET",
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	meta, err := c.GetMetadata(context.Background(), "tests", "ds.001")
	require.NoError(t, err)
	require.Equal(t, int64(2048), meta.Bytes)
	require.Equal(t, 4, meta.Length)
	require.True(t, meta.IsOpen)
	require.Equal(t, "DATASET", meta.DIDType)
}

func TestGetMetadataRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"bytes": 1, "length": 1})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.GetMetadata(context.Background(), "tests", "ds.002")
	require.NoError(t, err)
	require.GreaterOrEqual(t, attempts, 2)
}

func TestGetMetadataSurfacesErrorOnMissingDID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.GetMetadata(context.Background(), "tests", "missing")
	require.Error(t, err)
}

type countingProvider struct {
	calls int
	meta  transformer.CollectionMetadata
}

func (p *countingProvider) GetMetadata(ctx context.Context, scope, name string) (transformer.CollectionMetadata, error) {
	p.calls++
	return p.meta, nil
}

func TestCachingProviderOnlyCallsInnerOnce(t *testing.T) {
	inner := &countingProvider{meta: transformer.CollectionMetadata{Length: 7}}
	c := NewCachingProvider(inner, 10, time.Minute)

	for i := 0; i < 3; i++ {
		meta, err := c.GetMetadata(context.Background(), "tests", "ds.001")
		require.NoError(t, err)
		require.Equal(t, 7, meta.Length)
	}
	require.Equal(t, 1, inner.calls)
}

func TestCachingProviderKeysByScopeAndName(t *testing.T) {
	inner := &countingProvider{meta: transformer.CollectionMetadata{Length: 1}}
	c := NewCachingProvider(inner, 10, time.Minute)

	_, err := c.GetMetadata(context.Background(), "tests", "ds.001")
	require.NoError(t, err)
	_, err = c.GetMetadata(context.Background(), "tests", "ds.002")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestGetMetadataSendsAuthToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret-token", r.Header.Get("X-Rucio-Auth-Token"))
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second, AuthToken: "secret-token"})
	_, err := c.GetMetadata(context.Background(), "tests", "ds.003")
	require.NoError(t, err)
}
