package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegram-api-relay/internal/domain"
	"telegram-api-relay/internal/domain/model"
	"telegram-api-relay/internal/domain/ports/adapter"
	"telegram-api-relay/internal/infra/logging"
	"telegram-api-relay/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ DispatchUseCase = (*dispatchUC)(nil)

type DispatchRequest struct {
	UserID      int64
	IsAdmin     bool
	EndpointKey string
	Argument    string
}

type DispatchResult struct {
	RequestID string
	Endpoint  model.Endpoint
	Text      string
	// QuotaUsed is today's count after this call; zero for unlimited callers.
	QuotaUsed int
}

type DispatchUseCase interface {
	// Dispatch authorizes the caller, calls the endpoint once and returns the
	// normalized reply. Errors: domain.ErrQuotaExceeded, domain.ErrUnknownEndpoint,
	// domain.ErrServiceUnavailable.
	Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error)
}

type dispatchUC struct {
	registry       *model.Registry
	client         adapter.UpstreamClient
	quota          QuotaUseCase
	entitlement    EntitlementUseCase
	countUnlimited bool
	log            *zerolog.Logger
}

func NewDispatchUseCase(
	registry *model.Registry,
	client adapter.UpstreamClient,
	quota QuotaUseCase,
	entitlement EntitlementUseCase,
	countUsageForPremium bool,
	logger *zerolog.Logger,
) *dispatchUC {
	return &dispatchUC{
		registry:       registry,
		client:         client,
		quota:          quota,
		entitlement:    entitlement,
		countUnlimited: countUsageForPremium,
		log:            logger,
	}
}

func (uc *dispatchUC) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	defer logging.TraceDuration(uc.log, "DispatchUC.Dispatch")()

	reqID := ulid.Make().String()
	ctx = logging.WithRequestID(ctx, reqID)
	log := logging.With(ctx, uc.log)

	unlimited := req.IsAdmin
	if !unlimited {
		premium, err := uc.entitlement.IsPremium(ctx, req.UserID)
		if err != nil {
			log.Warn().Err(err).Msg("premium lookup failed; applying free quota")
		}
		unlimited = premium
	}

	var reservation *Reservation
	if !unlimited {
		r, err := uc.quota.TryConsume(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrQuotaExceeded) {
				metrics.IncQuotaExceeded()
				metrics.IncUpstreamCall(req.EndpointKey, "quota")
				log.Info().Str("endpoint", req.EndpointKey).Msg("free tier limit reached")
			}
			return nil, err
		}
		reservation = r
	}

	ep, ok := uc.registry.Lookup(req.EndpointKey)
	if !ok {
		uc.refund(ctx, log, reservation)
		metrics.IncUpstreamCall("unknown", "unknown")
		return nil, domain.ErrUnknownEndpoint
	}

	start := time.Now()
	text, err := uc.client.Fetch(ctx, ep.Render(req.Argument))
	elapsed := time.Since(start).Milliseconds()
	if err == nil && text == "" {
		err = errors.New("empty response")
	}
	metrics.ObserveUpstreamLatency(ep.Key, elapsed, err == nil)
	if err != nil {
		uc.refund(ctx, log, reservation)
		metrics.IncUpstreamCall(ep.Key, "failed")
		log.Error().Err(err).Str("endpoint", ep.Key).Int64("latency_ms", elapsed).Msg("upstream call failed")
		if errors.Is(err, domain.ErrServiceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}

	if unlimited && uc.countUnlimited {
		if err := uc.quota.Increment(ctx, req.UserID); err != nil {
			log.Warn().Err(err).Msg("usage increment failed")
		}
	}
	res := &DispatchResult{RequestID: reqID, Endpoint: ep, Text: text}
	if reservation != nil {
		res.QuotaUsed = reservation.Used
	}
	metrics.IncUpstreamCall(ep.Key, "ok")
	log.Info().Str("endpoint", ep.Key).Int64("latency_ms", elapsed).Int("bytes", len(text)).Int("quota_used", res.QuotaUsed).Msg("relayed")

	return res, nil
}

func (uc *dispatchUC) refund(ctx context.Context, log *zerolog.Logger, r *Reservation) {
	if r == nil {
		return
	}
	if err := uc.quota.Refund(ctx, r); err != nil {
		log.Warn().Err(err).Msg("quota refund failed")
	}
}
