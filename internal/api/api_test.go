package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/concierge-go/internal/config"
	"github.com/comigor/concierge-go/internal/history"
	"github.com/comigor/concierge-go/internal/llm"
	"github.com/comigor/concierge-go/internal/relay"
	"github.com/comigor/concierge-go/internal/sse"
	"github.com/comigor/concierge-go/internal/store/sqlite"
	"github.com/comigor/concierge-go/internal/survey"
)

type scriptedStream struct {
	events []llm.Event
}

func (s *scriptedStream) Recv() (llm.Event, error) {
	if len(s.events) == 0 {
		return llm.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *scriptedStream) Close() error { return nil }

type scriptedProvider struct {
	events []llm.Event
}

func (p *scriptedProvider) OpenStream(context.Context, string, []llm.Message) (llm.Stream, error) {
	return &scriptedStream{events: append([]llm.Event(nil), p.events...)}, nil
}

type brokenStore struct {
	*history.Memory
}

func (brokenStore) Upsert(context.Context, string, time.Time) (string, error) {
	return "", errors.New("database is locked")
}

type testEnv struct {
	router http.Handler
	store  *sqlite.Store
	assets string
}

func newEnv(t *testing.T, provider llm.Provider) *testEnv {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	surveys, err := survey.NewService(store)
	require.NoError(t, err)

	assets := t.TempDir()
	router := NewRouter(Dependencies{
		Relay:   relay.New(store, provider, relay.Settings{Model: "m", HistoryWindow: 12}),
		Surveys: surveys,
		Assets:  config.AssetsConfig{RoutePrefix: "/uploads", LocalDir: assets},
		CORS:    config.CORSConfig{FrontendOrigin: "*"},
	})
	return &testEnv{router: router, store: store, assets: assets}
}

func (e *testEnv) do(t *testing.T, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func frames(t *testing.T, body string) []sse.Frame {
	t.Helper()
	var out []sse.Frame
	for _, chunk := range strings.Split(body, "\n\n") {
		if chunk == "" {
			continue
		}
		require.True(t, strings.HasPrefix(chunk, "data: "), chunk)
		var f sse.Frame
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(chunk, "data: ")), &f))
		out = append(out, f)
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

func TestChat_DegradedModeStreamsDiagnostic(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/chat", "application/json", `{"message":"Hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/event-stream"))
	require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	require.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	got := frames(t, rec.Body.String())
	require.Len(t, got, 3)
	require.Equal(t, "session", got[0].Type)
	require.Empty(t, got[0].Content)
	require.Equal(t, "text", got[1].Type)
	require.Contains(t, got[1].Content, "Hello")
	require.Equal(t, "end", got[2].Type)
	id := got[0].SessionID
	require.NotEmpty(t, id)

	msgs, err := env.store.Recent(context.Background(), id, 12)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, history.RoleUser, msgs[0].Role)
	require.Equal(t, "Hello", msgs[0].Content)
	require.Equal(t, history.RoleAssistant, msgs[1].Role)
}

func TestChat_StreamsProviderDeltas(t *testing.T) {
	env := newEnv(t, &scriptedProvider{events: []llm.Event{llm.Delta("您好"), llm.Delta("！"), llm.Done(nil)}})

	rec := env.do(t, http.MethodPost, "/api/chat", "application/json", `{"message":"hi","session_id":42}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got := frames(t, rec.Body.String())
	require.Len(t, got, 4)
	require.Equal(t, []string{"session", "text", "text", "end"}, []string{got[0].Type, got[1].Type, got[2].Type, got[3].Type})
	require.Equal(t, "您好", got[1].Content)
	require.Len(t, got[0].SessionID, 32, "non-string session_id is ignored")
	require.Contains(t, rec.Body.String(), "您好", "non-ASCII text is not escaped")

	rec = env.do(t, http.MethodPost, "/api/chat", "application/json", `{"message":"again","session_id":"`+got[0].SessionID+`"}`)
	require.Equal(t, got[0].SessionID, frames(t, rec.Body.String())[0].SessionID)

	rec = env.do(t, http.MethodGet, "/api/chat/sessions/"+got[0].SessionID+"/messages", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hist historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	require.Equal(t, got[0].SessionID, hist.SessionID)
	require.Len(t, hist.Messages, 4)
	require.Equal(t, "您好！", hist.Messages[1].Content)
	require.Equal(t, "again", hist.Messages[2].Content)
}

func TestChat_RejectsBadRequests(t *testing.T) {
	env := newEnv(t, nil)

	cases := []struct {
		name, contentType, body, want string
	}{
		{"form body", "application/x-www-form-urlencoded", "message=hi", "Payload must be JSON."},
		{"no content type", "", `{"message":"hi"}`, "Payload must be JSON."},
		{"malformed", "application/json", `{"message":`, "Payload must be JSON."},
		{"empty message", "application/json", `{"message":""}`, "message is required"},
		{"blank message", "application/json; charset=utf-8", `{"message":"   "}`, "message is required"},
		{"missing message", "application/json", `{}`, "message is required"},
		{"non-string message", "application/json", `{"message":5}`, "message is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/chat", tc.contentType, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.JSONEq(t, `{"error":"`+tc.want+`"}`, rec.Body.String())
		})
	}

	var n int
	require.NoError(t, env.store.DB().QueryRow(`SELECT COUNT(*) FROM chat_messages`).Scan(&n))
	require.Zero(t, n)
}

func TestChat_StorageFailureBeforeStream(t *testing.T) {
	router := NewRouter(Dependencies{Relay: relay.New(brokenStore{history.NewMemory()}, nil, relay.Settings{})})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NotContains(t, rec.Body.String(), "locked")
}

func TestHistory_Errors(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/chat/sessions/nope/messages", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/chat", "application/json", `{"message":"hi","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/chat/sessions/s1/messages?limit=abc", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	for _, limit := range []string{"1", "0", "-4"} {
		rec = env.do(t, http.MethodGet, "/api/chat/sessions/s1/messages?limit="+limit, "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var hist historyResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
		require.Len(t, hist.Messages, 1, "limit %s", limit)
		require.Equal(t, history.RoleAssistant, hist.Messages[0].Role)
	}
}

func TestCORS_OnlyOnAPI(t *testing.T) {
	env := newEnv(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://hotel.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/__survey_load?sid=1", nil)
	req.Header.Set("Origin", "https://hotel.example")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAssets(t *testing.T) {
	env := newEnv(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(env.assets, "map.txt"), []byte("floor plan"), 0o600))

	rec := env.do(t, http.MethodGet, "/uploads/map.txt", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "floor plan", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/uploads/missing.txt", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

const surveyDefinition = `{
	"name": "Stay feedback",
	"questions": [
		{"question_type": "radio", "question_text": "How was your room?", "options": ["Great", "Fine"], "is_required": true},
		{"question_type": "textarea", "question_text": "Anything else?"}
	]
}`

func TestSurvey_RegisterLoadAndForm(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/surveys", "application/json", surveyDefinition)
	require.Equal(t, http.StatusCreated, rec.Code)
	var registered survey.Registered
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registered))
	require.Equal(t, 2, registered.QuestionCount)

	rec = env.do(t, http.MethodGet, "/__survey_load?sid=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var loaded survey.Survey
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loaded))
	require.Equal(t, "Stay feedback", loaded.Name)
	require.Len(t, loaded.Questions, 2)
	require.Equal(t, survey.TypeSingleChoice, loaded.Questions[0].Type)

	rec = env.do(t, http.MethodGet, "/survey/form?sid=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "How was your room?")

	rec = env.do(t, http.MethodPost, "/api/surveys", "application/json", `{"questions":"nope"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/surveys", "application/json", `{`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSurvey_LoadErrors(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/__survey_load", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"missing sid"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/__survey_load?sid=99", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"error":"survey not found"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/survey/form?sid=x", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, "/survey/form?sid=99", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSurvey_Submit(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/surveys", "application/json", surveyDefinition)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/__survey_submit", "application/json",
		`{"sid":1,"data":{"q_1":"Great","ignored":"x"},"participant":{"external_id":"guest-7","name":"Mei"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ok":true}`, rec.Body.String())

	form := url.Values{"sid": {"1"}, "q_2": {"Quiet floor please"}, "participant_id": {"guest-7"}}
	req := httptest.NewRequest(http.MethodPost, "/__survey_submit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	req.Header.Set("User-Agent", "kiosk/1.0")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var members, responses int
	require.NoError(t, env.store.DB().QueryRow(`SELECT COUNT(*) FROM members`).Scan(&members))
	require.NoError(t, env.store.DB().QueryRow(`SELECT COUNT(*) FROM survey_responses`).Scan(&responses))
	require.Equal(t, 1, members)
	require.Equal(t, 2, responses)

	var ip, agent string
	require.NoError(t, env.store.DB().QueryRow(
		`SELECT ip_address, user_agent FROM survey_responses ORDER BY id DESC LIMIT 1`).Scan(&ip, &agent))
	require.Equal(t, "203.0.113.9", ip)
	require.Equal(t, "kiosk/1.0", agent)

	for _, body := range []string{`{"sid":"abc"}`, `{"sid":99,"data":{}}`} {
		rec = env.do(t, http.MethodPost, "/__survey_submit", "application/json", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		var res submitResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		require.False(t, res.OK)
		require.NotEmpty(t, res.Error)
	}
}
