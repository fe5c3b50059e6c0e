package collysource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetch_DecodesSnippetText(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":"Countdown: March 6, 2008"}`)
	}))
	t.Cleanup(srv.Close)

	s := New(Config{UserAgent: "datewatch-test/1.0"})
	text, err := s.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "Countdown: March 6, 2008", text)
	require.Equal(t, "datewatch-test/1.0", gotUA)
}

func TestFetch_CustomTextField(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"snippet":"hello"}`)
	}))
	t.Cleanup(srv.Close)

	s := New(Config{TextField: "snippet"})
	text, err := s.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "hello", text)
}

func TestFetch_MissingField(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"other":"value"}`)
	}))
	t.Cleanup(srv.Close)

	s := New(Config{})
	_, err := s.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), `missing "text" field`)
}

func TestFetch_NonStringField(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":42}`)
	}))
	t.Cleanup(srv.Close)

	s := New(Config{})
	_, err := s.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestFetch_NonJSONBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	t.Cleanup(srv.Close)

	s := New(Config{})
	_, err := s.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestFetch_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	s := New(Config{})
	_, err := s.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestFetch_UnreachableHost(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	_, err := s.Fetch(context.Background(), "http://127.0.0.1:1/snippet")
	require.Error(t, err)
}
