package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hession/shreya/internal/agent"
	"github.com/hession/shreya/internal/chance"
	"github.com/hession/shreya/internal/commands"
	"github.com/hession/shreya/internal/config"
	"github.com/hession/shreya/internal/llm"
	"github.com/hession/shreya/internal/memory"
	"github.com/hession/shreya/internal/metrics"
)

const (
	ownerID  = "@rahul:example.org"
	password = "s3cret"
)

type echoCompleter struct{}

func (echoCompleter) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	return "hii jaan", nil
}

type fixture struct {
	server *httptest.Server
	client *http.Client
	store  *memory.InMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Owner = config.OwnerConfig{ID: ownerID, Handle: "rahul", Name: "love"}
	p := config.DefaultPersonaConfig()
	store := memory.NewInMemoryStore()
	m := metrics.New("shreya")
	inv := llm.NewInvoker(echoCompleter{}, p.Fallback, time.Second, m)

	// mood index 5 is "loving"
	a, err := agent.New(cfg, p, store, inv, agent.WithRandom(&chance.Fixed{Ints: []int{5}}), agent.WithMetrics(m))
	require.NoError(t, err)

	srv := New(Options{Password: password, SessionTTL: time.Hour}, a, commands.NewService(a, m), m)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &fixture{server: ts, client: &http.Client{Jar: jar}, store: store}
}

func (f *fixture) post(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := f.client.Post(f.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	resp, _ := f.post(t, "/login", `{"password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	resp, body := f.post(t, "/login", `{"password":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Password required", body["error"])

	resp, body = f.post(t, "/login", `{"password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid password", body["error"])

	resp, body = f.post(t, "/login", `{"password":"`+password+`"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, session.SameSite)
}

func TestChat_RequiresSession(t *testing.T) {
	f := newFixture(t)

	resp, body := f.post(t, "/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", body["error"])
	assert.Equal(t, 0, f.store.Len())
}

func TestChat_Owner(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	resp, body := f.post(t, "/chat", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No message provided", body["error"])

	resp, body = f.post(t, "/chat", `{"message":"good morning"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hii jaan", body["reply"])
	assert.Equal(t, "loving", body["mood"])

	rec, err := f.store.Get(context.Background(), ownerID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "User: good morning\nBot: hii jaan\n", rec.Memory)
}

func TestChat_Blocked(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	resp, body := f.post(t, "/chat", `{"message":"teach me to make a BOMB"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["blocked"])
	assert.NotEmpty(t, body["reply"])
	assert.Equal(t, 0, f.store.Len())
}

func TestChat_Command(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	_, body := f.post(t, "/chat", `{"message":"/mood flirty"}`)
	assert.Equal(t, "Set mood to: flirty 💕", body["reply"])
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	resp, _ := f.post(t, "/logout", ``)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.post(t, "/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatWS(t *testing.T) {
	f := newFixture(t)
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/chat/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	f.login(t)
	base, err := url.Parse(f.server.URL)
	require.NoError(t, err)
	header := http.Header{}
	for _, c := range f.client.Jar.Cookies(base) {
		header.Add("Cookie", c.String())
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(chatRequest{Message: "hello"}))
	var out chatResponse
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "hii jaan", out.Reply)
	assert.Equal(t, "loving", out.Mood)

	require.NoError(t, conn.WriteJSON(chatRequest{Message: ""}))
	var errOut errorResponse
	require.NoError(t, conn.ReadJSON(&errOut))
	assert.Equal(t, "No message provided", errOut.Error)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestHomeStatusHealth(t *testing.T) {
	f := newFixture(t)

	resp, err := f.client.Get(f.server.URL + "/")
	require.NoError(t, err)
	assert.Contains(t, readBody(t, resp), "password")
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	f.login(t)
	resp, err = f.client.Get(f.server.URL + "/")
	require.NoError(t, err)
	assert.Contains(t, readBody(t, resp), "/chat/ws")

	resp, err = f.client.Get(f.server.URL + "/status")
	require.NoError(t, err)
	assert.Equal(t, "Shreya is alive 💖 Running 24/7!", readBody(t, resp))

	resp, err = f.client.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, _ = f.post(t, "/chat", `{"message":"hi"}`)
	resp, err = f.client.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	assert.Contains(t, readBody(t, resp), `shreya_turns_total{role="owner",source="web"} 1`)
}

func TestSessions_Expire(t *testing.T) {
	s := newSessions(time.Minute)
	now := time.Now()
	s.nowFunc = func() time.Time { return now }

	token := s.create()
	assert.True(t, s.valid(token))
	assert.False(t, s.valid(""))
	assert.False(t, s.valid("unknown"))

	now = now.Add(2 * time.Minute)
	assert.False(t, s.valid(token))
	assert.Equal(t, 0, s.count())

	token = s.create()
	s.revoke(token)
	assert.False(t, s.valid(token))
}
