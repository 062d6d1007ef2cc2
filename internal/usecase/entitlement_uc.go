package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegram-api-relay/internal/config"
	"telegram-api-relay/internal/domain"
	"telegram-api-relay/internal/domain/model"
	"telegram-api-relay/internal/domain/ports/repository"
	"telegram-api-relay/internal/infra/logging"
	"telegram-api-relay/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ EntitlementUseCase = (*entitlementUC)(nil)

type EntitlementUseCase interface {
	GenerateCode(ctx context.Context, days int, issuerID int64) (*model.RedeemCode, error)
	Redeem(ctx context.Context, code string, userID int64) (*model.PremiumGrant, error)
	IsPremium(ctx context.Context, userID int64) (bool, error)
	// Grant returns the user's grant, or domain.ErrNotFound.
	Grant(ctx context.Context, userID int64) (*model.PremiumGrant, error)
	PurgeExpired(ctx context.Context) (int, error)
}

type entitlementUC struct {
	codes   repository.RedeemCodeRepository
	premium repository.PremiumRepository
	cfg     config.EntitlementConfig
	now     func() time.Time
	log     *zerolog.Logger
}

func NewEntitlementUseCase(
	codes repository.RedeemCodeRepository,
	premium repository.PremiumRepository,
	cfg config.EntitlementConfig,
	logger *zerolog.Logger,
) *entitlementUC {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 8
	}
	if cfg.MaxGenerateAttempts <= 0 {
		cfg.MaxGenerateAttempts = 5
	}
	return &entitlementUC{
		codes:   codes,
		premium: premium,
		cfg:     cfg,
		now:     time.Now,
		log:     logger,
	}
}

func (uc *entitlementUC) GenerateCode(ctx context.Context, days int, issuerID int64) (*model.RedeemCode, error) {
	defer logging.TraceDuration(uc.log, "EntitlementUC.GenerateCode")()

	if days <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	for attempt := 1; attempt <= uc.cfg.MaxGenerateAttempts; attempt++ {
		token, err := generateRedeemCode(uc.cfg.CodeLength)
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		rc, err := model.NewRedeemCode(token, days, issuerID, uc.cfg.CodeTTL)
		if err != nil {
			return nil, err
		}
		err = uc.codes.Create(ctx, rc)
		if errors.Is(err, domain.ErrAlreadyExists) {
			uc.log.Debug().Int("attempt", attempt).Msg("redeem code collision; regenerating")
			continue
		}
		if err != nil {
			return nil, err
		}
		metrics.IncCodesGenerated()
		uc.log.Info().Int64("issuer_id", issuerID).Int("days", days).Msg("redeem code issued")
		return rc, nil
	}
	return nil, fmt.Errorf("generate code: %w after %d attempts", domain.ErrAlreadyExists, uc.cfg.MaxGenerateAttempts)
}

func (uc *entitlementUC) Redeem(ctx context.Context, code string, userID int64) (*model.PremiumGrant, error) {
	defer logging.TraceDuration(uc.log, "EntitlementUC.Redeem")()

	code = normalizeRedeemCode(code)
	if code == "" {
		metrics.IncCodeRedeemed("not_found")
		return nil, domain.ErrCodeNotFound
	}
	rc, err := uc.codes.Take(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrCodeNotFound) {
			metrics.IncCodeRedeemed("not_found")
		} else {
			metrics.IncCodeRedeemed("error")
		}
		return nil, err
	}

	grant, err := uc.premium.Extend(ctx, userID, uc.now(), rc.Duration(), uc.cfg.StackRedemptions)
	if err != nil {
		// the code is consumed at this point
		metrics.IncCodeRedeemed("error")
		uc.log.Error().Err(err).Int64("tg_id", userID).Int("days", rc.DaysGranted).Msg("redeem: code taken but grant failed")
		return nil, err
	}
	metrics.IncCodeRedeemed("ok")
	uc.log.Info().Int64("tg_id", userID).Int("days", rc.DaysGranted).Time("expires_at", grant.ExpiresAt).Msg("premium redeemed")
	return grant, nil
}

func (uc *entitlementUC) IsPremium(ctx context.Context, userID int64) (bool, error) {
	g, err := uc.premium.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return g.Active(uc.now()), nil
}

func (uc *entitlementUC) Grant(ctx context.Context, userID int64) (*model.PremiumGrant, error) {
	return uc.premium.Get(ctx, userID)
}

func (uc *entitlementUC) PurgeExpired(ctx context.Context) (int, error) {
	now := uc.now()
	g, err := uc.premium.PurgeExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("purge grants: %w", err)
	}
	c, err := uc.codes.PurgeExpired(ctx, now)
	if err != nil {
		return g, fmt.Errorf("purge codes: %w", err)
	}
	return g + c, nil
}
