package buildinfo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func releaseServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLatest(t *testing.T) {
	tests := []struct {
		name    string
		current string
		tag     string
		newer   bool
	}{
		{name: "outdated", current: "v1.2.0", tag: "v1.3.0", newer: true},
		{name: "current", current: "v1.3.0", tag: "v1.3.0", newer: false},
		{name: "ahead", current: "v2.0.0", tag: "v1.3.0", newer: false},
		{name: "prerelease", current: "v1.3.0-rc.1", tag: "v1.3.0", newer: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := releaseServer(t, http.StatusOK, `{"tag_name":"`+tt.tag+`"}`)
			c := NewChecker(WithURL(srv.URL), WithCurrent(tt.current))

			latest, newer, err := c.Latest(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.tag, latest)
			assert.Equal(t, tt.newer, newer)
		})
	}
}

func TestLatest_Errors(t *testing.T) {
	srv := releaseServer(t, http.StatusForbidden, `{"message":"rate limited"}`)
	_, _, err := NewChecker(WithURL(srv.URL)).Latest(context.Background())
	assert.Error(t, err)

	srv = releaseServer(t, http.StatusOK, `{"tag_name":"not-a-version"}`)
	_, _, err = NewChecker(WithURL(srv.URL)).Latest(context.Background())
	assert.Error(t, err)
}

func TestCheckForUpdates_WarnsWhenOutdated(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	srv := releaseServer(t, http.StatusOK, `{"tag_name":"v9.0.0"}`)

	NewChecker(WithURL(srv.URL), WithCurrent("v1.0.0")).CheckForUpdates(context.Background(), zap.New(core))

	warnings := logs.FilterLevelExact(zap.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "v9.0.0", warnings[0].ContextMap()["latest"])
}
