package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alan-christopher/e91/e91"
	"github.com/alan-christopher/e91/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	t      *testing.T
	srv    *Server
	router http.Handler
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	cfg := config.Default()
	cfg.Exchange.Seed = 91
	if mutate != nil {
		mutate(&cfg)
	}
	logger, _ := test.NewNullLogger()
	srv, err := New(cfg, logger)
	require.NoError(t, err)
	router, err := srv.Router()
	require.NoError(t, err)
	return &harness{t: t, srv: srv, router: router}
}

func (h *harness) do(method, path, body string, out interface{}) int {
	h.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), out), "body: %s", w.Body.String())
	}
	return w.Code
}

func TestRunLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	var info RunInfo
	require.Equal(t, http.StatusCreated, h.do("POST", "/api/v1/runs", `{"trials": 2000, "adversary": false}`, &info))
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, 2000, info.Trials)
	assert.False(t, info.EavesdropperDetected)
	assert.Len(t, info.Key, 16, "8 byte key in hex")
	assert.Len(t, info.Correlations, 4)

	var got RunInfo
	require.Equal(t, http.StatusOK, h.do("GET", "/api/v1/runs/"+info.ID, "", &got))
	assert.Equal(t, info, got)

	var enc struct{ Ciphertext string }
	require.Equal(t, http.StatusOK, h.do("POST", "/api/v1/runs/"+info.ID+"/encrypt", `{"message": "Hello World!"}`, &enc))
	assert.NotEmpty(t, enc.Ciphertext)

	var dec struct{ Party, Plaintext string }
	body := `{"ciphertext": "` + enc.Ciphertext + `", "party": "receiver"}`
	require.Equal(t, http.StatusOK, h.do("POST", "/api/v1/runs/"+info.ID+"/decrypt", body, &dec))
	assert.Equal(t, "receiver", dec.Party)
	assert.Equal(t, "Hello World!", dec.Plaintext)

	// Without an adversary there are no intercepted bits to build a key from.
	body = `{"ciphertext": "` + enc.Ciphertext + `", "party": "adversary"}`
	assert.Equal(t, http.StatusUnprocessableEntity, h.do("POST", "/api/v1/runs/"+info.ID+"/decrypt", body, nil))

	assert.Equal(t, http.StatusNoContent, h.do("DELETE", "/api/v1/runs/"+info.ID, "", nil))
	assert.Equal(t, http.StatusNotFound, h.do("GET", "/api/v1/runs/"+info.ID, "", nil))
	assert.Equal(t, http.StatusNotFound, h.do("DELETE", "/api/v1/runs/"+info.ID, "", nil))
}

func TestAdversaryRun(t *testing.T) {
	h := newHarness(t, nil)

	var info RunInfo
	require.Equal(t, http.StatusCreated, h.do("POST", "/api/v1/runs", `{"trials": 2000, "adversary": true}`, &info))
	assert.True(t, info.EavesdropperDetected)

	var enc struct{ Ciphertext string }
	require.Equal(t, http.StatusOK, h.do("POST", "/api/v1/runs/"+info.ID+"/encrypt", `{"message": "Hello World!"}`, &enc))
	var dec struct{ Party, Plaintext string }
	body := `{"ciphertext": "` + enc.Ciphertext + `", "party": "adversary"}`
	require.Equal(t, http.StatusOK, h.do("POST", "/api/v1/runs/"+info.ID+"/decrypt", body, &dec))
	assert.NotEqual(t, "Hello World!", dec.Plaintext)
}

func TestCreateRunErrors(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Server.MaxRuns = 1 })

	assert.Equal(t, http.StatusBadRequest, h.do("POST", "/api/v1/runs", `{"trials": -3}`, nil))
	assert.Equal(t, http.StatusBadRequest, h.do("POST", "/api/v1/runs", `{"trials": `, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, h.do("POST", "/api/v1/runs", `{"trials": 10}`, nil))

	require.Equal(t, http.StatusCreated, h.do("POST", "/api/v1/runs", "", nil))
	assert.Equal(t, http.StatusTooManyRequests, h.do("POST", "/api/v1/runs", "", nil))

	h.srv.WipeAll()
	assert.Equal(t, http.StatusCreated, h.do("POST", "/api/v1/runs", "", nil))
}

func TestDecryptErrors(t *testing.T) {
	h := newHarness(t, nil)
	var info RunInfo
	require.Equal(t, http.StatusCreated, h.do("POST", "/api/v1/runs", "", &info))
	path := "/api/v1/runs/" + info.ID + "/decrypt"

	assert.Equal(t, http.StatusBadRequest, h.do("POST", path, `{"ciphertext": "", "party": "receiver"}`, nil))
	assert.Equal(t, http.StatusBadRequest, h.do("POST", path, `{"ciphertext": "AAAAAAAAAAA=", "party": "mallory"}`, nil))
	assert.Equal(t, http.StatusBadRequest, h.do("POST", path, `{"ciphertext": "%%%", "party": "receiver"}`, nil))
	assert.Equal(t, http.StatusNotFound, h.do("POST", "/api/v1/runs/12345/decrypt", `{"ciphertext": "AAAAAAAAAAA="}`, nil))
	assert.Equal(t, http.StatusNotFound, h.do("GET", "/api/v1/runs/not-an-id", "", nil))
}

func TestDeletedRunIsUnusable(t *testing.T) {
	h := newHarness(t, nil)
	info, err := h.srv.CreateRun(context.Background(), RunRequest{})
	require.NoError(t, err)
	ct, err := h.srv.Encrypt(info.ID, "Hello World!")
	require.NoError(t, err)

	require.True(t, h.srv.DeleteRun(info.ID))

	_, err = h.srv.Info(info.ID)
	assert.ErrorIs(t, err, errRunNotFound)
	_, err = h.srv.Encrypt(info.ID, "Hello World!")
	assert.ErrorIs(t, err, errRunNotFound)
	_, err = h.srv.Decrypt(info.ID, e91.Receiver, ct)
	assert.ErrorIs(t, err, errRunNotFound)
	assert.Equal(t, http.StatusNotFound, h.do("POST", "/api/v1/runs/"+info.ID+"/encrypt", `{"message": "Hello World!"}`, nil))
}

func TestEncryptRacingDelete(t *testing.T) {
	h := newHarness(t, nil)
	info, err := h.srv.CreateRun(context.Background(), RunRequest{})
	require.NoError(t, err)
	key, err := hex.DecodeString(info.Key)
	require.NoError(t, err)
	zero := make([]byte, len(key))

	const encrypts = 64
	cts := make(chan string, encrypts)
	var wg sync.WaitGroup
	for i := 0; i < encrypts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ct, err := h.srv.Encrypt(info.ID, "Hello World!")
			if err != nil {
				assert.ErrorIs(t, err, errRunNotFound)
				return
			}
			cts <- ct
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.srv.DeleteRun(info.ID)
	}()
	wg.Wait()
	close(cts)

	// Every ciphertext produced, before or after the delete, is under the
	// run's real key and never under the wiped one.
	for ct := range cts {
		pt, err := h.srv.cipher.DecryptText(ct, key)
		require.NoError(t, err)
		assert.Equal(t, "Hello World!", pt)
		pt, err = h.srv.cipher.DecryptText(ct, zero)
		require.NoError(t, err)
		assert.NotEqual(t, "Hello World!", pt)
	}
	_, err = h.srv.Info(info.ID)
	assert.ErrorIs(t, err, errRunNotFound)
}

func TestDecryptLeavesRunIntact(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Exchange.AmplifyRatio = 0.5 })
	info, err := h.srv.CreateRun(context.Background(), RunRequest{})
	require.NoError(t, err)
	ct, err := h.srv.Encrypt(info.ID, "Hello World!")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		pt, err := h.srv.Decrypt(info.ID, e91.Receiver, ct)
		require.NoError(t, err)
		assert.Equal(t, "Hello World!", pt)
	}
	after, err := h.srv.Info(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info, after)
}
