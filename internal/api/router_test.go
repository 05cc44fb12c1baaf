package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/Harshitk-cp/curio/internal/service"
	"github.com/Harshitk-cp/curio/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAPIKey = "test-key"

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func newTestApp(t *testing.T, db Pinger) *App {
	t.Helper()
	stores := service.Stores{
		Events:    store.NewMemoryEventStore(),
		Snapshots: store.NewMemorySnapshotStore(),
		Crystals:  store.NewMemoryCrystalStore(),
		Subjects:  store.NewMemorySubjectStore(),
	}
	return NewApp(stores, db, Config{
		APIKey:         testAPIKey,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		Options:        service.DefaultOptions(),
	}, zap.NewNop())
}

func do(t *testing.T, app *App, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

func ensureSubject(t *testing.T, app *App, externalID string) domain.Subject {
	t.Helper()
	rec := do(t, app, http.MethodPost, "/v1/subjects", map[string]string{"external_id": externalID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sub domain.Subject
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
	return sub
}

func TestHealth(t *testing.T) {
	t.Run("in-memory", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestApp(t, nil).Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	})

	t.Run("database down", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestApp(t, stubPinger{err: errors.New("connection refused")}).Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestV1RequiresAPIKey(t *testing.T) {
	app := newTestApp(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/subjects", bytes.NewBufferString(`{"external_id":"x"}`))
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubjectLifecycle(t *testing.T) {
	app := newTestApp(t, nil)
	sub := ensureSubject(t, app, "child-1")

	rec := do(t, app, http.MethodPost, "/v1/subjects", map[string]string{"external_id": "child-1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, app, http.MethodPost, "/v1/subjects", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, app, http.MethodGet, "/v1/subjects/"+sub.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"turn_state":"idle"`)
	assert.Contains(t, rec.Body.String(), `"external_id":"child-1"`)

	rec = do(t, app, http.MethodPost, "/v1/subjects/"+sub.ID.String()+"/rebuild", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"curiosities":0`)

	rec = do(t, app, http.MethodGet, "/v1/subjects/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, app, http.MethodGet, "/v1/subjects/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, app, http.MethodPost, "/v1/subjects/"+sub.ID.String()+"/archive", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, app, http.MethodPost, "/v1/subjects/"+sub.ID.String()+"/turns", map[string]any{"operations": []any{}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, app, http.MethodPost, "/v1/subjects/"+sub.ID.String()+"/rebuild", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitTurnAndRead(t *testing.T) {
	app := newTestApp(t, nil)
	sub := ensureSubject(t, app, "child-1")
	base := "/v1/subjects/" + sub.ID.String()

	rec := do(t, app, http.MethodPost, base+"/turns", map[string]any{
		"operations": []map[string]any{
			{"type": "create_curiosity", "args": map[string]any{
				"kind": "discovery", "focus": "hums while drawing", "initial_pull": 0.6, "fullness": 0.2,
			}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result service.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Operations, 1)
	require.True(t, result.Operations[0].Applied, result.Operations[0].Error)
	id := *result.Operations[0].CuriosityID

	rec = do(t, app, http.MethodPost, base+"/turns", map[string]any{
		"operations": []map[string]any{
			{"type": "apply_evidence", "args": map[string]any{
				"target_id": id.String(), "effect": "supports", "new_value": 0.5, "reasoning": "hummed again",
			}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, app, http.MethodGet, base+"/curiosities/"+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Fullness     float64 `json:"fullness"`
		Band         string  `json:"band"`
		StatusReason string  `json:"status_reason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.InDelta(t, 0.5, got.Fullness, 1e-9)
	assert.Equal(t, "growing", got.Band)
	assert.NotEmpty(t, got.StatusReason)

	rec = do(t, app, http.MethodGet, base+"/curiosities?active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = do(t, app, http.MethodGet, base+"/events?after=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = do(t, app, http.MethodGet, base+"/events?after=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, app, http.MethodGet, base+"/curiosities/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitTurnMalformed(t *testing.T) {
	app := newTestApp(t, nil)
	sub := ensureSubject(t, app, "child-1")

	rec := do(t, app, http.MethodPost, "/v1/subjects/"+sub.ID.String()+"/turns", map[string]any{
		"operations": []map[string]any{
			{"type": "create_curiosity", "args": map[string]any{"kind": "question", "focus": "why", "initial_pull": 0.5}},
			{"type": "apply_evidence", "args": map[string]any{"effect": "supports", "new_value": 0.5}},
			{"type": "summon", "args": map[string]any{}},
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Operations []struct {
			Index int    `json:"index"`
			Type  string `json:"type"`
		} `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Operations, 2)
	assert.Equal(t, 1, body.Operations[0].Index)
	assert.Equal(t, 2, body.Operations[1].Index)

	// Nothing from the refused batch was applied.
	rec = do(t, app, http.MethodGet, "/v1/subjects/"+sub.ID.String()+"/curiosities", nil)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}

func TestCrystalEndpoints(t *testing.T) {
	app := newTestApp(t, nil)
	sub := ensureSubject(t, app, "child-1")
	base := "/v1/subjects/" + sub.ID.String()

	rec := do(t, app, http.MethodGet, base+"/crystals/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, app, http.MethodPost, base+"/crystals", map[string]any{"source_curiosity_ids": []string{"bad"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, app, http.MethodPost, base+"/crystals", map[string]any{"summary_ref": "crystal-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, app, http.MethodGet, base+"/crystals/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"summary_ref":"crystal-1"`)
	assert.Contains(t, rec.Body.String(), `"stale":false`)
}

func TestTriggerDecay(t *testing.T) {
	app := newTestApp(t, nil)
	sub := ensureSubject(t, app, "child-1")

	req := httptest.NewRequest(http.MethodPost, "/v1/cognitive/decay", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"subjects_scanned":1`)

	rec = do(t, app, http.MethodPost, "/v1/cognitive/decay", map[string]string{"subject_id": sub.ID.String()})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, app, http.MethodPost, "/v1/cognitive/decay", map[string]string{"subject_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationStream(t *testing.T) {
	app := newTestApp(t, nil)
	sub := ensureSubject(t, app, "child-1")
	other := ensureSubject(t, app, "child-2")

	rec := do(t, app, http.MethodGet, "/v1/subjects/"+uuid.NewString()+"/notifications", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/subjects/"+sub.ID.String()+"/notifications", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": subscribed\n", line)

	create := func(subjectID uuid.UUID, focus string) {
		rec := do(t, app, http.MethodPost, "/v1/subjects/"+subjectID.String()+"/turns", map[string]any{
			"operations": []map[string]any{
				{"type": "create_curiosity", "args": map[string]any{"kind": "question", "focus": focus, "initial_pull": 0.5}},
			},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	create(other.ID, "not for this stream")
	create(sub.ID, "why the stairs")

	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	assert.Equal(t, string(domain.NotifyCuriosityCreated), event)

	var n domain.Notification
	require.NoError(t, json.Unmarshal([]byte(data), &n))
	assert.Equal(t, sub.ID, n.SubjectID)
}
