package playlist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveDirectURLUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("direct stream URLs must not be fetched")
	}))
	defer srv.Close()

	got, err := Resolve(context.Background(), srv.URL+"/live")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/live", got)
}

func TestResolvePLS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/x-scpls")
		_, _ = w.Write([]byte("[playlist]\nNumberOfEntries=1\nFile1=http://stream.test:8000/live\nTitle1=Test Radio\n"))
	}))
	defer srv.Close()

	got, err := Resolve(context.Background(), srv.URL+"/tune.pls")
	require.NoError(t, err)
	require.Equal(t, "http://stream.test:8000/live", got)
}

func TestResolveM3U(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpegurl")
		_, _ = w.Write([]byte("#EXTM3U\n# a comment\nhttp://stream.test:8000/live\n"))
	}))
	defer srv.Close()

	got, err := Resolve(context.Background(), srv.URL+"/tune.m3u")
	require.NoError(t, err)
	require.Equal(t, "http://stream.test:8000/live", got)
}

func TestResolveEmptyPlaylist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/x-scpls")
		_, _ = w.Write([]byte("[playlist]\nNumberOfEntries=0\n"))
	}))
	defer srv.Close()

	_, err := Resolve(context.Background(), srv.URL+"/tune.pls")
	require.Error(t, err)
}

func TestResolveFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := Resolve(context.Background(), srv.URL+"/gone.m3u")
	require.Error(t, err)
}

func TestLooksLikePlaylist(t *testing.T) {
	for rawurl, want := range map[string]bool{
		"http://radio.test/tune.pls":        true,
		"http://radio.test/tune.M3U":        true,
		"http://radio.test/master.m3u8?x=1": true,
		"http://radio.test/live":            false,
		"http://radio.test/live.mp3":        false,
	} {
		require.Equal(t, want, looksLikePlaylist(rawurl), rawurl)
	}
}
