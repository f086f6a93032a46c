package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bituzin/stacksend/internal/metrics"
	"github.com/bituzin/stacksend/internal/model"
	"github.com/bituzin/stacksend/internal/normalizer"
	"github.com/bituzin/stacksend/internal/pipeline"
	"github.com/bituzin/stacksend/internal/tracing"
)

const (
	AckValidateFirst = "validate-first"
	AckFirst         = "ack-first"

	EndpointSTX = "stx-transfer"
	EndpointFT  = "ft-transfer"

	DeliveryIDHeader = "X-Delivery-Id"
)

// Processor runs the pipeline for one decoded delivery.
type Processor interface {
	Process(ctx context.Context, payload model.WebhookPayload) pipeline.Summary
}

type Options struct {
	AckMode           string
	AuthToken         string
	MaxBodyBytes      int64
	ProcessingTimeout time.Duration
}

// Handler serves the webhook endpoints, one per transfer type.
type Handler struct {
	processors map[string]Processor
	runner     *Runner
	opts       Options
	logger     *zap.Logger
}

func NewHandler(stx, ft Processor, runner *Runner, opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.AckMode == "" {
		opts.AckMode = AckValidateFirst
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = time.Minute
	}
	if runner == nil {
		runner = NewRunner(opts.ProcessingTimeout, LogSink(logger))
	}
	return &Handler{
		processors: map[string]Processor{EndpointSTX: stx, EndpointFT: ft},
		runner:     runner,
		opts:       opts,
		logger:     logger,
	}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/webhooks/"+EndpointSTX, h.serve(EndpointSTX)).Methods(http.MethodPost)
	r.HandleFunc("/api/webhooks/"+EndpointFT, h.serve(EndpointFT)).Methods(http.MethodPost)
}

func (h *Handler) serve(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID := uuid.NewString()
		w.Header().Set(DeliveryIDHeader, deliveryID)
		log := h.logger.With(zap.String("endpoint", endpoint), zap.String("delivery_id", deliveryID))

		if !h.authorized(r) {
			h.respond(w, endpoint, "unauthorized", http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.respond(w, endpoint, "too_large", http.StatusRequestEntityTooLarge, map[string]any{"error": "Payload too large"})
				return
			}
			log.Warn("read webhook body", zap.Error(err))
			h.respond(w, endpoint, "invalid", http.StatusBadRequest, map[string]any{"error": "Invalid payload"})
			return
		}

		processor := h.processors[endpoint]
		if h.opts.AckMode == AckFirst {
			h.ackFirst(w, r, endpoint, processor, body, log)
			return
		}
		h.validateFirst(w, r, endpoint, processor, body, log)
	}
}

func (h *Handler) validateFirst(w http.ResponseWriter, r *http.Request, endpoint string, p Processor, body []byte, log *zap.Logger) {
	payload, err := normalizer.DecodePayload(body)
	if err != nil {
		log.Warn("invalid webhook payload", zap.Error(err))
		h.respond(w, endpoint, "invalid", http.StatusBadRequest, map[string]any{"error": "Invalid payload"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.ProcessingTimeout)
	defer cancel()

	sum, err := h.process(ctx, endpoint, p, payload)
	if err != nil {
		log.Error("webhook processing failed", zap.Error(err), zap.Stack("stack"))
		h.respond(w, endpoint, "error", http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
		return
	}

	if sum.Failed > 0 {
		// Recorded transfers come back as duplicates on the retry.
		log.Error("webhook transfers not stored", summaryFields(sum)...)
		h.respond(w, endpoint, "failed", http.StatusInternalServerError, map[string]any{"error": "Failed to store transfers"})
		return
	}

	log.Info("webhook processed", summaryFields(sum)...)
	h.respond(w, endpoint, "processed", http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) ackFirst(w http.ResponseWriter, r *http.Request, endpoint string, p Processor, body []byte, log *zap.Logger) {
	accepted := h.runner.Go(r.Context(), endpoint, func(ctx context.Context) error {
		payload, err := normalizer.DecodePayload(body)
		if err != nil {
			log.Warn("invalid webhook payload ignored after ack", zap.Error(err))
			return nil
		}
		sum, err := h.process(ctx, endpoint, p, payload)
		if err != nil {
			return err
		}
		if sum.Failed > 0 {
			return fmt.Errorf("%d of %d transfers not stored", sum.Failed, sum.Transfers)
		}
		log.Info("webhook processed", summaryFields(sum)...)
		return nil
	})
	if !accepted {
		h.respond(w, endpoint, "unavailable", http.StatusServiceUnavailable, map[string]any{"error": "Shutting down"})
		return
	}
	h.respond(w, endpoint, "acknowledged", http.StatusOK, map[string]any{"received": true})
}

// process runs the pipeline and turns panics into errors.
func (h *Handler) process(ctx context.Context, endpoint string, p Processor, payload model.WebhookPayload) (sum pipeline.Summary, err error) {
	ctx, span := tracing.Tracer("webhook").Start(ctx, "webhook."+endpoint)
	span.SetAttributes(
		attribute.String("network", string(payload.Network)),
		attribute.Int("blocks", len(payload.Apply)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.WebhookProcessingLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			span.RecordError(err)
		}
	}()

	return p.Process(ctx, payload), nil
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.opts.AuthToken == "" {
		return true
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.opts.AuthToken)) == 1
}

func (h *Handler) respond(w http.ResponseWriter, endpoint, outcome string, status int, v any) {
	metrics.WebhookDeliveriesTotal.WithLabelValues(endpoint, outcome).Inc()
	writeJSON(w, status, v)
}

func summaryFields(sum pipeline.Summary) []zap.Field {
	return []zap.Field{
		zap.Int("transfers", sum.Transfers),
		zap.Int("recorded", sum.Recorded),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("skipped", sum.Skipped),
		zap.Int("faults", sum.Faults),
		zap.Int("failed", sum.Failed),
		zap.Int("notified", sum.Notified),
		zap.Int("notify_failed", sum.NotifyFailed),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
