package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/courier/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "courier_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)

	srv := httptest.NewServer(NewRouter(zerolog.Nop(), db))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, apiKey string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	return resp, decoded
}

func registerAgent(t *testing.T, srv *httptest.Server, name string) (id, apiKey string) {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/agents/register", "", map[string]string{"name": name})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d", name, resp.StatusCode)
	}
	return body["id"].(string), body["api_key"].(string)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "healthy", body["status"])
	require.NotEmpty(t, body["timestamp"])
}

func TestRegisterConflict(t *testing.T) {
	srv := newTestServer(t)

	registerAgent(t, srv, "ann")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/agents/register", "", map[string]string{"name": "ann"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetAgentProfile(t *testing.T) {
	srv := newTestServer(t)

	id, _ := registerAgent(t, srv, "ann")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/agents/ann", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, id, body["id"])
	require.Equal(t, "ann", body["name"])
	require.NotContains(t, body, "api_key", "profile must not expose the credential")

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/agents/nobody", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/threads", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/threads", "ck_invalid", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSendAndReadRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	_, annKey := registerAgent(t, srv, "ann")
	boID, boKey := registerAgent(t, srv, "bo")

	// Ann sends "hi" to Bo.
	resp, sent := doJSON(t, http.MethodPost, srv.URL+"/api/messages/send", annKey,
		map[string]string{"recipient_id": boID, "content": "hi"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	threadID := sent["thread_id"].(string)
	require.NotEmpty(t, threadID)
	require.Nil(t, sent["read_at"])

	// Bo fetches the thread and sees "hi" marked read.
	resp, page := doJSON(t, http.MethodGet, srv.URL+"/api/messages/thread/"+threadID, boKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	messages := page["messages"].([]any)
	require.Len(t, messages, 1)
	first := messages[0].(map[string]any)
	require.Equal(t, "hi", first["content"])
	require.NotNil(t, first["read_at"])

	// Bo's inbox shows no unread for that thread.
	resp, inbox := doJSON(t, http.MethodGet, srv.URL+"/api/threads", boKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	threads := inbox["threads"].([]any)
	require.Len(t, threads, 1)
	summary := threads[0].(map[string]any)
	require.Equal(t, threadID, summary["thread_id"])
	require.EqualValues(t, 0, summary["unread_count"])
}

func TestSendValidationOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	annID, annKey := registerAgent(t, srv, "ann")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/messages/send", annKey,
		map[string]string{"recipient_id": annID, "content": "me"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/messages/send", annKey,
		map[string]string{"recipient_id": "not-a-uuid", "content": "hi"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/messages/send", annKey,
		map[string]string{"recipient_id": "0198c9ad-0000-7000-8000-000000000000", "content": "hi"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSendMaxLengthEscapeHeavyContent(t *testing.T) {
	srv := newTestServer(t)

	_, annKey := registerAgent(t, srv, "ann")
	boID, boKey := registerAgent(t, srv, "bo")

	// Every byte of this max-length message doubles under JSON escaping,
	// so the wire payload is over 100KB; the body cap must still admit it.
	content := strings.Repeat(`"`, 50000)

	resp, sent := doJSON(t, http.MethodPost, srv.URL+"/api/messages/send", annKey,
		map[string]string{"recipient_id": boID, "content": content})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	threadID := sent["thread_id"].(string)

	// The content survives the round trip intact.
	resp, page := doJSON(t, http.MethodGet, srv.URL+"/api/messages/thread/"+threadID, boKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	messages := page["messages"].([]any)
	require.Len(t, messages, 1)
	require.Equal(t, content, messages[0].(map[string]any)["content"])
}

func TestThreadHistoryForbidden(t *testing.T) {
	srv := newTestServer(t)

	_, annKey := registerAgent(t, srv, "ann")
	boID, _ := registerAgent(t, srv, "bo")
	_, eveKey := registerAgent(t, srv, "eve")

	resp, sent := doJSON(t, http.MethodPost, srv.URL+"/api/messages/send", annKey,
		map[string]string{"recipient_id": boID, "content": "secret"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	threadID := sent["thread_id"].(string)

	// Non-member and nonexistent thread yield identical responses.
	respMember, bodyMember := doJSON(t, http.MethodGet, srv.URL+"/api/messages/thread/"+threadID, eveKey, nil)
	respMissing, bodyMissing := doJSON(t, http.MethodGet, srv.URL+"/api/messages/thread/0198c9ad-0000-7000-8000-000000000000", eveKey, nil)
	require.Equal(t, http.StatusForbidden, respMember.StatusCode)
	require.Equal(t, http.StatusForbidden, respMissing.StatusCode)
	require.Equal(t, bodyMember["error"], bodyMissing["error"])
}
