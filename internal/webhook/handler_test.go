package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bituzin/stacksend/internal/model"
	"github.com/bituzin/stacksend/internal/normalizer"
	"github.com/bituzin/stacksend/internal/pipeline"
	"github.com/bituzin/stacksend/internal/storage/memory"
)

const stxBody = `{"apply":[{"block_identifier":{"index":12},"timestamp":1700000000,"transactions":[
 {"transaction_identifier":{"hash":"tx-1"},"metadata":{"success":true},
  "operations":[{"type":"CONTRACT_CALL","account":{"address":"SP_SENDER"},
   "metadata":{"function_name":"send-many-stx","function_args_decoded":[[{"to":"SP_A","ustx":1000000},{"to":"SP_B","ustx":2000000}]]}}]}]}],
 "chainhook":{"network":"mainnet"}}`

// brokenStore fails every ledger write.
type brokenStore struct {
	*memory.Store
}

func (brokenStore) CreateTransfer(context.Context, model.NormalizedTransfer) (model.LedgerWrite, error) {
	return model.LedgerWrite{}, errors.New("connection reset by peer")
}

type panicProcessor struct{}

func (panicProcessor) Process(context.Context, model.WebhookPayload) pipeline.Summary {
	panic("boom")
}

type countingProcessor struct {
	calls atomic.Int32
	done  chan struct{}
}

func (c *countingProcessor) Process(context.Context, model.WebhookPayload) pipeline.Summary {
	c.calls.Add(1)
	if c.done != nil {
		c.done <- struct{}{}
	}
	return pipeline.Summary{}
}

func newRouter(stx, ft Processor, opts Options) (*mux.Router, *Runner) {
	runner := NewRunner(time.Second, nil)
	h := NewHandler(stx, ft, runner, opts, nil)
	r := mux.NewRouter()
	h.Register(r)
	return r, runner
}

func post(r http.Handler, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestValidateFirstRecordsTransfer(t *testing.T) {
	store := memory.New()
	p := pipeline.New(normalizer.New(normalizer.DecodedSTXDetector{}, nil), pipeline.Deps{Store: store})
	r, _ := newRouter(p, p, Options{})

	rec := post(r, "/api/webhooks/stx-transfer", stxBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(DeliveryIDHeader))

	transfers := store.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, int64(3000000), transfers[0].TotalAmount)

	// Redelivery is acknowledged without a second record.
	rec = post(r, "/api/webhooks/stx-transfer", stxBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, store.Transfers(), 1)
}

func TestValidateFirstRejectsMalformedBody(t *testing.T) {
	p := &countingProcessor{}
	r, _ := newRouter(p, p, Options{})

	for _, body := range []string{`not json`, `{"chainhook":{"network":"mainnet"}}`, `{"apply":"x"}`} {
		rec := post(r, "/api/webhooks/ft-transfer", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"error":"Invalid payload"}`, rec.Body.String())
	}
	assert.Zero(t, p.calls.Load())
}

func TestValidateFirstPanicIs500(t *testing.T) {
	r, _ := newRouter(panicProcessor{}, panicProcessor{}, Options{})

	rec := post(r, "/api/webhooks/stx-transfer", stxBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestAckFirstProcessesInBackground(t *testing.T) {
	p := &countingProcessor{done: make(chan struct{}, 1)}
	r, runner := newRouter(p, p, Options{AckMode: AckFirst})

	rec := post(r, "/api/webhooks/stx-transfer", stxBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("background processing did not run")
	}
	require.NoError(t, runner.Shutdown(context.Background()))
}

func TestAckFirstAcknowledgesMalformedBody(t *testing.T) {
	p := &countingProcessor{}
	r, runner := newRouter(p, p, Options{AckMode: AckFirst})

	rec := post(r, "/api/webhooks/stx-transfer", `not json`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, runner.Shutdown(context.Background()))
	assert.Zero(t, p.calls.Load())
}

func TestAckFirstAfterShutdownIs503(t *testing.T) {
	p := &countingProcessor{}
	r, runner := newRouter(p, p, Options{AckMode: AckFirst})
	require.NoError(t, runner.Shutdown(context.Background()))

	rec := post(r, "/api/webhooks/stx-transfer", stxBody)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBearerToken(t *testing.T) {
	p := &countingProcessor{}
	r, _ := newRouter(p, p, Options{AuthToken: "s3cret"})

	rec := post(r, "/api/webhooks/stx-transfer", stxBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(r, "/api/webhooks/stx-transfer", stxBody, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(r, "/api/webhooks/stx-transfer", stxBody, "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestBodyTooLarge(t *testing.T) {
	p := &countingProcessor{}
	r, _ := newRouter(p, p, Options{MaxBodyBytes: 16})

	rec := post(r, "/api/webhooks/stx-transfer", stxBody)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, p.calls.Load())
}

func TestRunnerReportsPanicsAndErrors(t *testing.T) {
	var failures atomic.Int32
	runner := NewRunner(time.Second, func(string, error) { failures.Add(1) })

	runner.Go(context.Background(), "a", func(context.Context) error { return errors.New("nope") })
	runner.Go(context.Background(), "b", func(context.Context) error { panic("boom") })
	runner.Go(context.Background(), "c", func(context.Context) error { return nil })

	require.NoError(t, runner.Shutdown(context.Background()))
	assert.Equal(t, int32(2), failures.Load())
}

func TestRunnerIgnoresParentCancellation(t *testing.T) {
	runner := NewRunner(time.Second, nil)
	parent, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	release := make(chan struct{})
	runner.Go(parent, "job", func(ctx context.Context) error {
		<-release
		errCh <- ctx.Err()
		return nil
	})
	cancel()
	close(release)

	require.NoError(t, runner.Shutdown(context.Background()))
	assert.NoError(t, <-errCh)
}

func TestValidateFirstStorageFailureIs500(t *testing.T) {
	p := pipeline.New(normalizer.New(normalizer.DecodedSTXDetector{}, nil),
		pipeline.Deps{Store: brokenStore{memory.New()}})
	r, _ := newRouter(p, p, Options{})

	rec := post(r, "/api/webhooks/stx-transfer", stxBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to store transfers"}`, rec.Body.String())
}

func TestValidateFirstNonMatchingBatchIs200(t *testing.T) {
	store := memory.New()
	p := pipeline.New(normalizer.New(normalizer.DecodedSTXDetector{}, nil), pipeline.Deps{Store: store})
	r, _ := newRouter(p, p, Options{})

	body := `{"apply":[{"block_identifier":{"index":3},"transactions":[
	 {"transaction_identifier":42},
	 {"transaction_identifier":{"hash":"tx-x"},"metadata":{"success":true},"operations":[]}]}],
	 "chainhook":{"network":"mainnet"}}`
	rec := post(r, "/api/webhooks/stx-transfer", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.Transfers())
}

func TestAckFirstStorageFailureReachesSink(t *testing.T) {
	failures := make(chan error, 1)
	runner := NewRunner(time.Second, func(_ string, err error) { failures <- err })
	p := pipeline.New(normalizer.New(normalizer.DecodedSTXDetector{}, nil),
		pipeline.Deps{Store: brokenStore{memory.New()}})
	h := NewHandler(p, p, runner, Options{AckMode: AckFirst}, nil)
	r := mux.NewRouter()
	h.Register(r)

	rec := post(r, "/api/webhooks/stx-transfer", stxBody)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, runner.Shutdown(context.Background()))

	select {
	case err := <-failures:
		assert.Contains(t, err.Error(), "not stored")
	default:
		t.Fatal("storage failure was not reported")
	}
}
