package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/http/handlers"
	applog "storefront/internal/log"
	"storefront/internal/repos"
)

type testEnv struct {
	App  *fiber.App
	DB   *sqlx.DB
	Deps *handlers.Deps
}

// newTestApp builds the real app over a seeded in-memory database.
func newTestApp(t *testing.T, tweak ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.DB = config.DBConfig{Driver: "sqlite", DSN: ":memory:", Seed: true}
	cfg.App.LogFile = ""
	cfg.Payments.CheckoutBaseURL = "/pay/"
	for _, f := range tweak {
		f(&cfg)
	}

	db, err := repos.OpenDB(cfg.DB)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	deps, err := handlers.NewDeps(db, cfg, nil)
	require.NoError(t, err)
	return &testEnv{App: handlers.NewApp(deps, cfg), DB: db, Deps: deps}
}

func (e *testEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := e.Deps.Auth.Issue(userID, role)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) customer(t *testing.T) string {
	return e.token(t, repos.SeedCustomerID, domain.RoleUser)
}

func (e *testEnv) admin(t *testing.T) string {
	return e.token(t, repos.SeedAdminID, domain.RoleAdmin)
}

type apiResponse struct {
	Status     int               `json:"-"`
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Data       json.RawMessage   `json:"data"`
	Pagination domain.Pagination `json:"pagination"`
	Kind       string            `json:"kind"`
	Details    map[string]any    `json:"details"`
	Raw        string            `json:"-"`
}

// call sends a JSON request; body may be nil, a string (sent as is) or any
// value to marshal.
func (e *testEnv) call(t *testing.T, method, path, token string, body any, headers ...string) apiResponse {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := e.App.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	out := apiResponse{Status: resp.StatusCode, Raw: string(raw)}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return out
}

func decode[T any](t *testing.T, r apiResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v), r.Raw)
	return v
}

type logEntry struct {
	Level    string         `json:"level"`
	Action   string         `json:"msg"`
	Category string         `json:"category"`
	UserID   string         `json:"user_id"`
	Fields   map[string]any `json:"fields"`
}

type lockedWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.buf.Write(p)
}

// captureLogs points the app logger at a buffer while fn runs.
func captureLogs(t *testing.T, fn func()) []logEntry {
	t.Helper()
	w := &lockedWriter{}
	applog.SetOutput(w, zapcore.DebugLevel)
	defer applog.SetOutput(os.Stdout, zapcore.InfoLevel)

	fn()

	w.mu.Lock()
	defer w.mu.Unlock()
	var entries []logEntry
	for _, line := range strings.Split(strings.TrimSpace(w.buf.String()), "\n") {
		var e logEntry
		if err := json.Unmarshal([]byte(line), &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

func findLog(entries []logEntry, action string) *logEntry {
	for i := range entries {
		if entries[i].Action == action {
			return &entries[i]
		}
	}
	return nil
}

func cookie(resp *http.Response, name string) string {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
