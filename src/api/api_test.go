package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/postoracle/src/config"
	"github.com/stake-plus/postoracle/src/ledger"
	"github.com/stake-plus/postoracle/src/observers"
	"github.com/stake-plus/postoracle/src/oracle"
	"github.com/stake-plus/postoracle/src/poller"
	"github.com/stake-plus/postoracle/src/wallet"
	"github.com/stake-plus/postoracle/src/workflow"
)

func init() { gin.SetMode(gin.TestMode) }

type pendingReader struct{}

func (pendingReader) GetPost(_ context.Context, id *big.Int) (ledger.Post, error) {
	return ledger.Post{ID: id, Status: ledger.StatusPending}, nil
}

type fakePipeline struct {
	mu        sync.Mutex
	submitErr error
	statusErr error
	post      ledger.Post
	requests  []workflow.Request
	poller    *poller.Poller
}

func newFakePipeline(t *testing.T) *fakePipeline {
	p := poller.New(pendingReader{}, poller.Config{Interval: time.Hour, MaxAttempts: 3}, nil)
	t.Cleanup(p.StopAll)
	return &fakePipeline{poller: p}
}

func (f *fakePipeline) Submit(_ context.Context, req workflow.Request) (*workflow.Submission, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &workflow.Submission{
		CorrelationID: "corr-1",
		PostID:        big.NewInt(42),
		TxHash:        common.HexToHash("0xbeef"),
		Author:        common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		Fingerprint:   oracle.Fingerprint(req.Content),
	}, nil
}

func (f *fakePipeline) Status(_ context.Context, id *big.Int) (ledger.Post, error) {
	if f.statusErr != nil {
		return ledger.Post{}, f.statusErr
	}
	p := f.post
	p.ID = id
	return p, nil
}

func (f *fakePipeline) Watch(id *big.Int) *poller.Session { return f.poller.Start(id, "watch") }
func (f *fakePipeline) Session(id *big.Int) *poller.Session { return f.poller.Session(id) }
func (f *fakePipeline) Cancel(id *big.Int) bool { return f.poller.Cancel(id) }

func newTestRouter(t *testing.T, p Pipeline, mutate func(*Options)) *gin.Engine {
	t.Helper()
	opts := Options{
		Pipeline:        p,
		CORSOrigins:     []string{"http://localhost:3000"},
		SubmitPerMinute: 100,
		IPFSGateway:     "https://gw.example/ipfs/",
	}
	if mutate != nil {
		mutate(&opts)
	}
	r, limiter := NewRouter(opts)
	t.Cleanup(limiter.Stop)
	return r
}

func do(r http.Handler, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCreatePostAccepted(t *testing.T) {
	fp := newFakePipeline(t)
	r := newTestRouter(t, fp, nil)

	w := do(r, http.MethodPost, "/v1/posts", workflow.Request{Username: "alice", Content: "hello"}, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, "42", body["postId"])
	assert.Equal(t, common.HexToHash("0xbeef").Hex(), body["txHash"])
	assert.Equal(t, "corr-1", body["correlationId"])
	require.Len(t, fp.requests, 1)
	assert.Equal(t, "alice", fp.requests[0].Username)
}

func TestCreatePostRejectsMalformedJSON(t *testing.T) {
	r := newTestRouter(t, newFakePipeline(t), nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/posts", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePostErrorMapping(t *testing.T) {
	notify := &workflow.NotifyError{
		CorrelationID: "c9",
		PostID:        big.NewInt(7),
		TxHash:        common.HexToHash("0x07"),
		Err:           &oracle.RejectedError{StatusCode: 500, Body: "boom"},
	}
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"invalid", fmt.Errorf("%w: content is required", workflow.ErrInvalidRequest), http.StatusBadRequest},
		{"no wallet", wallet.ErrWalletUnavailable, http.StatusServiceUnavailable},
		{"account declined", fmt.Errorf("request account: %w", wallet.ErrUserRejected), http.StatusForbidden},
		{"signing declined", fmt.Errorf("%w: %w", ledger.ErrTransactionRejected, wallet.ErrUserRejected), http.StatusForbidden},
		{"reverted", &ledger.RevertedError{Reason: "nope"}, http.StatusUnprocessableEntity},
		{"network", &ledger.NetworkError{Op: "send transaction", Err: errors.New("eof")}, http.StatusBadGateway},
		{"event missing", ledger.ErrDomainEventMissing, http.StatusInternalServerError},
		{"oracle", notify, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fp := newFakePipeline(t)
			fp.submitErr = tc.err
			r := newTestRouter(t, fp, nil)

			w := do(r, http.MethodPost, "/v1/posts", workflow.Request{Username: "a", Content: "b"}, nil)
			assert.Equal(t, tc.code, w.Code)
			assert.Equal(t, tc.err.Error(), decode(t, w)["err"])
		})
	}
}

func TestNotifyErrorCarriesIdentifiers(t *testing.T) {
	fp := newFakePipeline(t)
	fp.submitErr = &workflow.NotifyError{
		CorrelationID: "c9",
		PostID:        big.NewInt(7),
		TxHash:        common.HexToHash("0x07"),
		Err:           &oracle.RejectedError{StatusCode: 503, Body: "down"},
	}
	r := newTestRouter(t, fp, nil)

	body := decode(t, do(r, http.MethodPost, "/v1/posts", workflow.Request{Username: "a", Content: "b"}, nil))
	assert.Equal(t, "7", body["postId"])
	assert.Equal(t, "c9", body["correlationId"])
	assert.Equal(t, float64(503), body["oracleStatus"])
}

func TestGetPost(t *testing.T) {
	fp := newFakePipeline(t)
	fp.post = ledger.Post{Username: "bob", Status: ledger.StatusApproved, SimilarityScore: 33, IPFSCID: "bafyq"}
	r := newTestRouter(t, fp, nil)

	w := do(r, http.MethodGet, "/v1/posts/5", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "5", body["postId"])
	assert.Equal(t, "Approved", body["status"])
	assert.Equal(t, true, body["terminal"])
	assert.Equal(t, float64(33), body["similarityScore"])
	assert.Equal(t, "https://gw.example/ipfs/bafyq", body["gatewayUrl"])

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/v1/posts/abc", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/v1/posts/-1", nil, nil).Code)

	fp.statusErr = fmt.Errorf("post 5: %w", ledger.ErrPostNotFound)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/v1/posts/5", nil, nil).Code)
}

func TestSessionLifecycle(t *testing.T) {
	fp := newFakePipeline(t)
	r := newTestRouter(t, fp, nil)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/v1/posts/3/session", nil, nil).Code)

	w := do(r, http.MethodPost, "/v1/posts/3/watch", nil, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Polling", body["state"])
	assert.Equal(t, float64(3), body["maxAttempts"])
	assert.Equal(t, "watch", body["correlationId"])

	w = do(r, http.MethodGet, "/v1/posts/3/session", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", decode(t, w)["postId"])

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/v1/posts/3/session", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/v1/posts/3/session", nil, nil).Code)
}

func TestJWTRequiredWhenSecretSet(t *testing.T) {
	secret := "s3cret"
	r := newTestRouter(t, newFakePipeline(t), func(o *Options) { o.JWTSecret = secret })

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/v1/posts/1", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/v1/posts/1", nil, map[string]string{"Authorization": "Bearer junk"}).Code)

	wrong, err := IssueToken([]byte("other"), "alice", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/v1/posts/1", nil, map[string]string{"Authorization": "Bearer " + wrong}).Code)

	expired, err := IssueToken([]byte(secret), "alice", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/v1/posts/1", nil, map[string]string{"Authorization": "Bearer " + expired}).Code)

	good, err := IssueToken([]byte(secret), "alice", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/v1/posts/1", nil, map[string]string{"Authorization": "Bearer " + good}).Code)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", nil, nil).Code)
}

func TestSubmissionsAreRateLimitedPerSubject(t *testing.T) {
	secret := "s3cret"
	r := newTestRouter(t, newFakePipeline(t), func(o *Options) {
		o.JWTSecret = secret
		o.SubmitPerMinute = 2
	})
	alice, _ := IssueToken([]byte(secret), "alice", time.Minute)
	bob, _ := IssueToken([]byte(secret), "bob", time.Minute)
	req := workflow.Request{Username: "a", Content: "b"}

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/v1/posts", req, map[string]string{"Authorization": "Bearer " + alice}).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodPost, "/v1/posts", req, map[string]string{"Authorization": "Bearer " + alice}).Code)
	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/v1/posts", req, map[string]string{"Authorization": "Bearer " + bob}).Code)
	// reads are not limited
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/v1/posts/1", nil, map[string]string{"Authorization": "Bearer " + alice}).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := observers.NewMetrics()
	r := newTestRouter(t, newFakePipeline(t), func(o *Options) { o.Metrics = m })

	do(r, http.MethodGet, "/v1/posts/1", nil, nil)
	w := do(r, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `postoracle_http_requests_total{code="200",method="GET",route="/v1/posts/:id"} 1`)
}

func TestNewServerWithoutTLS(t *testing.T) {
	cfg := config.Config{Port: "0"}
	s, err := NewServer(cfg, Options{Pipeline: newFakePipeline(t)})
	require.NoError(t, err)
	assert.NotNil(t, s.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNewServerRejectsMissingCertificate(t *testing.T) {
	cfg := config.Config{Port: "0", TLSCertFile: "/nonexistent/cert.pem", TLSKeyFile: "/nonexistent/key.pem"}
	_, err := NewServer(cfg, Options{Pipeline: newFakePipeline(t)})
	assert.Error(t, err)
}
