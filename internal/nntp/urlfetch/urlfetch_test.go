package urlfetch

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="movie.nzb"`)
		w.Write([]byte("<nzb></nzb>"))
	}))
	defer srv.Close()

	f := New(3, 10*time.Millisecond, time.Second)
	res, err := f.Fetch(t.Context(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "movie.nzb", res.Filename)
	require.Equal(t, "<nzb></nzb>", string(res.Body))
}

func TestFetchRetriesOnServerError(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("<nzb></nzb>"))
	}))
	defer srv.Close()

	f := New(5, time.Millisecond, time.Second)
	res, err := f.Fetch(t.Context(), srv.URL)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(3))
}

func TestFetchClientErrorIsPermanent(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(5, time.Millisecond, time.Second)
	_, err := f.Fetch(t.Context(), srv.URL)
	require.Error(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&attempts))
}

func TestMaxRetries(t *testing.T) {
	require.Equal(t, 1, maxRetries(0))
	require.Equal(t, 1, maxRetries(-1))
	require.Equal(t, 5, maxRetries(5))
}
