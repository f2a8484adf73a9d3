package pubsub

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPusherPublisher_SignsRequests(t *testing.T) {
	var gotPath, gotQuery string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	p := NewPusherPublisher(PusherConfig{AppID: "42", Key: "k", Secret: "s", BaseURL: srv.URL})
	defer p.Close()

	err := p.Publish(context.Background(), "room-482913", "member-joined", map[string]string{"roomCode": "482913"})
	require.NoError(t, err)

	assert.Equal(t, "/apps/42/events", gotPath)

	var body pusherEventBody
	require.NoError(t, json.Unmarshal(gotBody, &body))
	assert.Equal(t, "member-joined", body.Name)
	assert.Equal(t, []string{"room-482913"}, body.Channels)
	assert.JSONEq(t, `{"roomCode":"482913"}`, body.Data)

	q, err := url.ParseQuery(gotQuery)
	require.NoError(t, err)
	assert.Equal(t, "k", q.Get("auth_key"))
	assert.Equal(t, "1.0", q.Get("auth_version"))

	md5sum := md5.Sum(gotBody)
	assert.Equal(t, hex.EncodeToString(md5sum[:]), q.Get("body_md5"))

	// Recompute the signature the way the receiving service would.
	params := "auth_key=k&auth_timestamp=" + q.Get("auth_timestamp") +
		"&auth_version=1.0&body_md5=" + q.Get("body_md5")
	mac := hmac.New(sha256.New, []byte("s"))
	mac.Write([]byte("POST\n/apps/42/events\n" + params))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), q.Get("auth_signature"))
}

func TestPusherPublisher_SurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewPusherPublisher(PusherConfig{AppID: "42", Key: "k", Secret: "s", BaseURL: srv.URL})
	defer p.Close()

	err := p.Publish(context.Background(), "room-1", "room-updated", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestPusherPublisher_BreakerShedsAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewPusherPublisher(PusherConfig{AppID: "42", Key: "k", Secret: "s", BaseURL: srv.URL})
	defer p.Close()

	// The breaker trips after six consecutive failures.
	for i := 0; i < 6; i++ {
		err := p.Publish(context.Background(), "room-1", "member-joined", nil)
		require.Error(t, err, "call %d should surface the failure", i)
	}

	// Open breaker: events are shed silently, never failing the caller.
	err := p.Publish(context.Background(), "room-1", "member-joined", nil)
	assert.NoError(t, err)
}

func TestPusherPublisher_DerivesClusterURL(t *testing.T) {
	p := NewPusherPublisher(PusherConfig{AppID: "42", Key: "k", Secret: "s", Cluster: "ap3"})
	defer p.Close()

	assert.Equal(t, "https://api-ap3.pusher.com", p.baseURL)
}
