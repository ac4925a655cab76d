package opener_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/tabsched/internal/opener"
)

func TestHTTPOpenerOpensTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	o := opener.NewHTTPOpener(zap.NewNop(), 5*time.Second)
	handle, err := o.Open(context.Background(), srv.URL, false)
	require.NoError(t, err)

	assert.Equal(t, srv.URL, handle.Target)
	assert.Equal(t, http.StatusOK, handle.Status)
}

func TestHTTPOpenerFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	o := opener.NewHTTPOpener(zap.NewNop(), 5*time.Second)
	handle, err := o.Open(context.Background(), srv.URL+"/start", false)
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/final", handle.ResolvedURL)
}

func TestHTTPOpenerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	o := opener.NewHTTPOpener(zap.NewNop(), 5*time.Second)
	_, err := o.Open(context.Background(), srv.URL, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestHTTPOpenerInvalidTarget(t *testing.T) {
	o := opener.NewHTTPOpener(zap.NewNop(), 5*time.Second)
	_, err := o.Open(context.Background(), "://not-a-url", false)
	require.Error(t, err)
}

func TestHTTPOpenerUnreachableTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	o := opener.NewHTTPOpener(zap.NewNop(), time.Second)
	_, err := o.Open(context.Background(), srv.URL, false)
	require.Error(t, err)
}

func TestResolverFollowsRedirectChain(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/settled", http.StatusFound)
	})
	mux.HandleFunc("/settled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r := opener.NewResolver(zap.NewNop(), 5*time.Second)
	resolved, err := r.Resolve(context.Background(), srv.URL+"/a")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/settled", resolved)
}

func TestResolverTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	r := opener.NewResolver(zap.NewNop(), 100*time.Millisecond)
	_, err := r.Resolve(context.Background(), srv.URL)
	require.ErrorIs(t, err, opener.ErrResolveTimeout)
}

func TestResolverNoRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := opener.NewResolver(zap.NewNop(), 5*time.Second)
	resolved, err := r.Resolve(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, resolved)
}

func TestExecOpenerCommandFailure(t *testing.T) {
	o := opener.NewExecOpener(zap.NewNop(), "/nonexistent/launcher")
	_, err := o.Open(context.Background(), "https://example.com", false)
	require.Error(t, err)
}

func TestExecOpenerRunsCommand(t *testing.T) {
	o := opener.NewExecOpener(zap.NewNop(), "true")
	handle, err := o.Open(context.Background(), "https://example.com", false)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", handle.Target)
}
