package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"webcash-wallet/config"
	"webcash-wallet/internal/service"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPassword = "correct horse battery staple"
	testTerms    = "Webcash terms of service v1"
)

// testAPI runs the full control API over a real SQLite wallet and an
// in-memory Redis.
type testAPI struct {
	server *httptest.Server
	wallet *Wallet
	token  string
}

func newTestAPI(t *testing.T, mutate ...func(*config.Config)) *testAPI {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Wallet.Path = filepath.Join(t.TempDir(), "wallet.db")
	cfg.Server.Mode = "test"
	cfg.JWT.Secret = strings.Repeat("s", 32)
	cfg.Redis.Enabled = true

	cheap := service.NewArgon2HashServiceWithParams(service.Argon2Params{
		Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16,
	})
	cfg.Auth.PasswordHash, err = cheap.Hash(testPassword)
	require.NoError(t, err)

	for _, m := range mutate {
		m(cfg)
	}
	require.NoError(t, cfg.Validate())

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	w := open(t, cfg.Wallet.Path)
	server := httptest.NewServer(NewRouter(cfg, w, rdb, zerolog.Nop()))
	t.Cleanup(server.Close)

	return &testAPI{server: server, wallet: w}
}

type apiResponse struct {
	Status    int             `json:"-"`
	Header    http.Header     `json:"-"`
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
}

func (a *testAPI) do(t *testing.T, method, path, body string, headers ...string) apiResponse {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := apiResponse{Status: resp.StatusCode, Header: resp.Header}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return out
}

func (a *testAPI) login(t *testing.T) {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/v1/auth/login", `{"password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusOK, resp.Status)

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.NotEmpty(t, data.Token)
	a.token = data.Token
}

func (a *testAPI) insert(t *testing.T, token string) int64 {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/v1/webcash", `{"token":"`+token+`","mine":true}`)
	require.Equal(t, http.StatusCreated, resp.Status, resp.ErrorCode)

	var data struct {
		OutputID int64 `json:"output_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	return data.OutputID
}

func (a *testAPI) balance(t *testing.T) string {
	t.Helper()
	resp := a.do(t, http.MethodGet, "/api/v1/balance", "")
	require.Equal(t, http.StatusOK, resp.Status)

	var data struct {
		Amount string `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	return data.Amount
}

type replaced struct {
	Outputs []struct {
		OutputID int64  `json:"output_id"`
		Amount   string `json:"amount"`
		Mine     bool   `json:"mine"`
		Public   string `json:"public"`
		Token    string `json:"token"`
	} `json:"outputs"`
}

func TestAPI_HealthCheck(t *testing.T) {
	api := newTestAPI(t)

	resp, err := http.Get(api.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status       string                     `json:"status"`
		Dependencies map[string]json.RawMessage `json:"dependencies"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Contains(t, body.Dependencies, "sqlite")
	assert.Contains(t, body.Dependencies, "redis")
}

func TestAPI_RequiresLogin(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, http.MethodGet, "/api/v1/balance", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Status)

	resp = api.do(t, http.MethodPost, "/api/v1/auth/login", `{"password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, "AUTH_001", resp.ErrorCode)

	api.token = "not.a.jwt"
	resp = api.do(t, http.MethodGet, "/api/v1/balance", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
}

func TestAPI_WalletFlow(t *testing.T) {
	api := newTestAPI(t)
	api.login(t)

	// Value-moving routes wait for terms.
	resp := api.do(t, http.MethodPost, "/api/v1/webcash", `{"token":"e1:secret:first-secret","mine":true}`)
	require.Equal(t, http.StatusPreconditionFailed, resp.Status)
	assert.Equal(t, "VAL_005", resp.ErrorCode)

	resp = api.do(t, http.MethodPost, "/api/v1/terms/accept", `{"text":"`+testTerms+`"}`)
	require.Equal(t, http.StatusOK, resp.Status)
	resp = api.do(t, http.MethodPost, "/api/v1/terms/status", `{"text":"`+testTerms+`"}`)
	assert.JSONEq(t, `{"key":"`+service.TermsKey(testTerms)+`","accepted":true}`, string(resp.Data))

	// Insert and duplicate insert.
	input := api.insert(t, "e1:secret:first-secret")
	resp = api.do(t, http.MethodPost, "/api/v1/webcash", `{"token":"e1:secret:first-secret","mine":true}`)
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.Equal(t, "CONFLICT_002", resp.ErrorCode)
	assert.Equal(t, "1", api.balance(t))

	// Split into a payment and change.
	body := `{"inputs":[` + strconv.FormatInt(input, 10) + `],"outputs":[{"amount":"0.25"},{"amount":"0.75","mine":true}]}`
	resp = api.do(t, http.MethodPost, "/api/v1/replace", body, "Idempotency-Key", "split-1")
	require.Equal(t, http.StatusOK, resp.Status, resp.ErrorCode)

	var first replaced
	require.NoError(t, json.Unmarshal(resp.Data, &first))
	require.Len(t, first.Outputs, 2)
	payment, change := first.Outputs[0], first.Outputs[1]
	assert.True(t, strings.HasPrefix(payment.Token, "e0.25:secret:"))
	assert.Empty(t, change.Token)
	assert.True(t, change.Mine)

	// Replaying the key returns the same outputs without secrets.
	resp = api.do(t, http.MethodPost, "/api/v1/replace", body, "Idempotency-Key", "split-1")
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "true", resp.Header.Get("Idempotent-Replayed"))
	var replay replaced
	require.NoError(t, json.Unmarshal(resp.Data, &replay))
	require.Len(t, replay.Outputs, 2)
	assert.Equal(t, payment.OutputID, replay.Outputs[0].OutputID)
	assert.Equal(t, payment.Public, replay.Outputs[0].Public)
	assert.Empty(t, replay.Outputs[0].Token)

	// Without the key the spent input is refused.
	resp = api.do(t, http.MethodPost, "/api/v1/replace", body)
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.Equal(t, "CONFLICT_001", resp.ErrorCode)

	// The payment secret can be read back explicitly.
	resp = api.do(t, http.MethodGet, "/api/v1/outputs/"+strconv.FormatInt(payment.OutputID, 10)+"/secret", "")
	require.Equal(t, http.StatusOK, resp.Status)
	var secret struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &secret))
	assert.Equal(t, payment.Token, secret.Token)

	resp = api.do(t, http.MethodGet, "/api/v1/outputs?spent=false", "")
	require.Equal(t, http.StatusOK, resp.Status)
	var unspent struct {
		Items []struct {
			ID int64 `json:"id"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &unspent))
	assert.Len(t, unspent.Items, 2)
	assert.NotContains(t, string(resp.Data), "secret")

	resp = api.do(t, http.MethodGet, "/api/v1/outputs/"+strconv.FormatInt(input, 10), "")
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Data), `"spent":true`)

	// Both new outputs carry known secrets, so the balance is unchanged.
	assert.Equal(t, "1", api.balance(t))
}

func TestAPI_ValueNotConserved(t *testing.T) {
	api := newTestAPI(t)
	api.login(t)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/terms/accept", `{"text":"t"}`).Status)

	input := api.insert(t, "e2:secret:two")
	resp := api.do(t, http.MethodPost, "/api/v1/replace",
		`{"inputs":[`+strconv.FormatInt(input, 10)+`],"outputs":[{"amount":"1.5"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
	assert.Equal(t, "VAL_002", resp.ErrorCode)
	assert.Equal(t, "2", api.balance(t))
}

// TestAPI_ConcurrentReplace races replaces of the same input through the
// HTTP layer; exactly one may win.
func TestAPI_ConcurrentReplace(t *testing.T) {
	api := newTestAPI(t)
	api.login(t)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/terms/accept", `{"text":"t"}`).Status)

	input := api.insert(t, "e1:secret:contested")
	body := `{"inputs":[` + strconv.FormatInt(input, 10) + `],"outputs":[{"amount":"1","mine":true}]}`

	const racers = 8
	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodPost, api.server.URL+"/api/v1/replace", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+api.token)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusOK:
				wins.Add(1)
			case http.StatusConflict:
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(racers-1), conflicts.Load())
	assert.Equal(t, "1", api.balance(t))
}

func TestAPI_LoginRateLimited(t *testing.T) {
	api := newTestAPI(t, func(c *config.Config) { c.Auth.LoginRateLimit = 2 })

	for i := 0; i < 2; i++ {
		resp := api.do(t, http.MethodPost, "/api/v1/auth/login", `{"password":"wrong"}`)
		assert.Equal(t, http.StatusUnauthorized, resp.Status)
	}
	resp := api.do(t, http.MethodPost, "/api/v1/auth/login", `{"password":"`+testPassword+`"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.Status)
	assert.Equal(t, "RATE_001", resp.ErrorCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestAPI_ClosedWallet(t *testing.T) {
	api := newTestAPI(t)
	api.login(t)
	require.NoError(t, api.wallet.Close())

	resp := api.do(t, http.MethodGet, "/api/v1/balance", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, "LOCK_002", resp.ErrorCode)
}
