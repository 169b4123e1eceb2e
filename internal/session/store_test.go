package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireCreatesSessionAndCookie(t *testing.T) {
	store := NewStore()
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	sess := store.Acquire(w, r)
	require.NotNil(t, sess)
	assert.Equal(t, 1, store.Len())

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
}

func TestAcquireReturnsSameMapForSameCookie(t *testing.T) {
	store := NewStore()
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	first := store.Acquire(w, r)
	first["user"] = "ada"
	id := w.Result().Cookies()[0].Value

	r2 := httptest.NewRequest("GET", "/", nil)
	r2.AddCookie(&http.Cookie{Name: CookieName, Value: id})
	second := store.Acquire(httptest.NewRecorder(), r2)

	assert.Equal(t, "ada", second["user"])
	assert.Equal(t, 1, store.Len())
}

func TestUnknownCookieGetsFreshSession(t *testing.T) {
	store := NewStore()
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "stale"})

	w := httptest.NewRecorder()
	sess := store.Acquire(w, r)
	require.NotNil(t, sess)

	// A replacement cookie is issued.
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.NotEqual(t, "stale", cookies[0].Value)
}
