package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"payment-limiter/internal/model"
	"payment-limiter/internal/repository"
)

// ErrDuplicate is returned when a payment id has already been charged or is
// being charged.
var ErrDuplicate = errors.New("duplicate payment")

type Service struct {
	Repo         repository.Store
	Cache        PaymentCache
	Gateway      Gateway
	Log          zerolog.Logger
	MaxRetries   int
	RetryBackoff time.Duration
	Now          func() time.Time
}

func NewService(r repository.Store, c PaymentCache, g Gateway, log zerolog.Logger) *Service {
	return &Service{
		Repo: r, Cache: c, Gateway: g, Log: log,
		MaxRetries:   3,
		RetryBackoff: 500 * time.Millisecond,
		Now:          time.Now,
	}
}

// Pay charges amount on behalf of userID. An empty paymentID gets a generated
// one. The returned payment reflects the final stored state.
func (s *Service) Pay(ctx context.Context, userID, paymentID string, amount float64) (*model.Payment, error) {
	if paymentID == "" {
		paymentID = xid.New().String()
	}
	log := s.Log.With().Str("payment_id", paymentID).Str("user_id", userID).Logger()

	reserved, err := s.Cache.Reserve(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !reserved {
		log.Info().Msg("duplicate payment prevented")
		return nil, fmt.Errorf("payment %s: %w", paymentID, ErrDuplicate)
	}

	now := s.Now()
	p := &model.Payment{
		ID:        paymentID,
		UserID:    userID,
		Amount:    amount,
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.Save(ctx, p); err != nil {
		s.release(log, paymentID)
		return nil, err
	}

	chargeErr := s.charge(ctx, p)
	p.UpdatedAt = s.Now()

	if chargeErr != nil {
		p.Status = model.StatusFailed
		if err := s.Repo.Save(context.WithoutCancel(ctx), p); err != nil {
			log.Error().Err(err).Msg("store failed payment")
		}
		s.release(log, paymentID)
		log.Warn().Err(chargeErr).Int("retries", p.RetryCount).Msg("payment failed")
		return p, fmt.Errorf("payment %s: %w", paymentID, chargeErr)
	}

	p.Status = model.StatusSuccess
	if err := s.Cache.MarkSucceeded(ctx, paymentID); err != nil {
		log.Error().Err(err).Msg("mark payment succeeded in cache")
	}
	if err := s.Repo.Save(ctx, p); err != nil {
		log.Error().Err(err).Msg("store succeeded payment")
	}
	log.Info().Float64("amount", amount).Int("retries", p.RetryCount).Msg("payment succeeded")
	return p, nil
}

// charge tries the gateway up to MaxRetries times, backing off linearly.
func (s *Service) charge(ctx context.Context, p *model.Payment) error {
	attempts := s.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for {
		err = s.Gateway.Charge(ctx, p.Amount)
		if err == nil || ctx.Err() != nil {
			return err
		}
		p.RetryCount++
		if p.RetryCount >= attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.RetryBackoff * time.Duration(p.RetryCount)):
		}
	}
}

func (s *Service) release(log zerolog.Logger, paymentID string) {
	if err := s.Cache.Release(context.Background(), paymentID); err != nil {
		log.Error().Err(err).Msg("release payment reservation")
	}
}
