package ziplookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGeocoder struct {
	name  string
	place Place
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (s *stubGeocoder) Name() string { return s.name }

func (s *stubGeocoder) Lookup(ctx context.Context, zip string) (Place, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Place{}, ctx.Err()
		}
	}
	return s.place, s.err
}

func TestLookup_InvalidZipNoNetwork(t *testing.T) {
	g := &stubGeocoder{name: "a", place: Place{City: "X", State: "YY"}}
	a := New([]Geocoder{g}, Options{Fallback: map[string]Place{}})

	for _, zip := range []string{"", "1234", "123456", "12a45", " 12345"} {
		r := a.Lookup(context.Background(), zip)
		assert.False(t, r.Found, zip)
		assert.Equal(t, zip, r.ZipCode)
	}
	assert.Equal(t, int32(0), g.calls.Load())
}

func TestLookup_FirstSuccessWinsAndIsCached(t *testing.T) {
	first := &stubGeocoder{name: "first", err: errors.New("boom")}
	second := &stubGeocoder{name: "second", place: Place{City: "Lexington", State: "KY"}}
	third := &stubGeocoder{name: "third", place: Place{City: "Wrong", State: "ZZ"}}
	a := New([]Geocoder{first, second, third}, Options{Fallback: map[string]Place{}})

	r := a.Lookup(context.Background(), "40505")
	assert.True(t, r.Found)
	assert.Equal(t, "Lexington", r.City)
	assert.Equal(t, "KY", r.State)
	assert.Equal(t, "second", r.Source)
	assert.Equal(t, int32(0), third.calls.Load())

	r = a.Lookup(context.Background(), "40505")
	assert.Equal(t, "second", r.Source)
	assert.Equal(t, int32(1), second.calls.Load())
	assert.Equal(t, 1, a.cacheLen())
}

func TestLookup_TimeoutFallsThroughToFallback(t *testing.T) {
	slow := &stubGeocoder{name: "slow", place: Place{City: "Late", State: "XX"}, delay: time.Second}
	a := New([]Geocoder{slow}, Options{
		Timeout:  20 * time.Millisecond,
		Fallback: map[string]Place{"10001": {City: "New York", State: "NY"}},
	})

	r := a.Lookup(context.Background(), "10001")
	assert.True(t, r.Found)
	assert.Equal(t, SourceFallback, r.Source)
	assert.Equal(t, "New York", r.City)
}

func TestLookup_NotFoundIsNotCached(t *testing.T) {
	g := &stubGeocoder{name: "a", err: ErrNotFound}
	a := New([]Geocoder{g}, Options{Fallback: map[string]Place{}})

	assert.False(t, a.Lookup(context.Background(), "99999").Found)
	assert.False(t, a.Lookup(context.Background(), "99999").Found)
	assert.Equal(t, int32(2), g.calls.Load())
	assert.Equal(t, 0, a.cacheLen())
}

func TestLookup_ConcurrentCallsCollapse(t *testing.T) {
	g := &stubGeocoder{name: "a", place: Place{City: "Austin", State: "TX"}, delay: 50 * time.Millisecond}
	a := New([]Geocoder{g}, Options{Fallback: map[string]Place{}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, a.Lookup(context.Background(), "78701").Found)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), g.calls.Load())
}

func TestDefaultFallback_Embedded(t *testing.T) {
	fb := DefaultFallback()
	require.NotEmpty(t, fb)
	assert.Equal(t, Place{City: "Lexington", State: "KY"}, fb["40505"])
}

func TestZippopotamus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/us/40505":
			w.Write([]byte(`{"post code":"40505","places":[{"place name":"Lexington","state abbreviation":"KY"}]}`))
		case "/us/50000":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	g := NewZippopotamus(srv.URL, srv.Client())
	p, err := g.Lookup(context.Background(), "40505")
	require.NoError(t, err)
	assert.Equal(t, Place{City: "Lexington", State: "KY"}, p)

	_, err = g.Lookup(context.Background(), "00000")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = g.Lookup(context.Background(), "50000")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestPostalCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/postal_code", r.URL.Path)
		assert.Equal(t, "US", r.URL.Query().Get("country"))
		if r.URL.Query().Get("code") == "30301" {
			w.Write([]byte(`{"city":"Atlanta","state_code":"GA"}`))
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	g := NewPostalCodes(srv.URL, srv.Client())
	p, err := g.Lookup(context.Background(), "30301")
	require.NoError(t, err)
	assert.Equal(t, Place{City: "Atlanta", State: "GA"}, p)

	_, err = g.Lookup(context.Background(), "30302")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestZipCodeStack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		w.Write([]byte(`{"results":{"98101":[{"city":"Seattle","state_code":"WA"}]}}`))
	}))
	defer srv.Close()

	g := NewZipCodeStack(srv.URL, srv.Client())
	p, err := g.Lookup(context.Background(), "98101")
	require.NoError(t, err)
	assert.Equal(t, Place{City: "Seattle", State: "WA"}, p)

	_, err = g.Lookup(context.Background(), "98102")
	assert.ErrorIs(t, err, ErrNotFound)
}
