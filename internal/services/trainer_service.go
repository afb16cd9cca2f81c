package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Dhoini/fitness-billing-service/internal/config"
	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/internal/repository"
	"github.com/Dhoini/fitness-billing-service/internal/stripe"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"
)

// TrainerService подключает тренеров к Stripe Connect.
type TrainerService struct {
	trainers    repository.TrainerRepository
	gateway     stripe.Gateway
	frontendURL string
	log         *logger.Logger
}

// NewTrainerService конструктор сервиса
func NewTrainerService(repos Repositories, gateway stripe.Gateway, cfg config.AppConfig, log *logger.Logger) *TrainerService {
	return &TrainerService{
		trainers:    repos.Trainers,
		gateway:     gateway,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		log:         log,
	}
}

// StartOnboarding создает (или переиспользует) подключенный аккаунт и выдает ссылку на онбординг.
// Завершение онбординга приходит событием account.updated.
func (s *TrainerService) StartOnboarding(ctx context.Context, actor domain.Actor) (*domain.OnboardingLink, error) {
	if actor.Role != domain.RoleTrainer {
		return nil, domain.Forbidden("only trainers can connect a payout account")
	}
	profile, err := s.trainers.GetByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, notFoundAs(err, "trainer profile not found")
	}
	if profile.OnboardingCompleted {
		return nil, domain.BadRequest("onboarding already completed")
	}

	accountID := domain.StrVal(profile.StripeAccountID)
	if accountID == "" {
		accountID, err = s.gateway.CreateConnectedAccount(ctx, actor.UserID.String(), actor.Email)
		if err != nil {
			return nil, fmt.Errorf("create connected account: %w", err)
		}
	}

	url, err := s.gateway.CreateAccountLink(ctx, accountID,
		s.frontendURL+"/trainer/onboarding/refresh",
		s.frontendURL+"/trainer/onboarding/complete",
	)
	if err != nil {
		return nil, fmt.Errorf("create account link: %w", err)
	}

	if err := s.trainers.SetStripeAccount(ctx, actor.UserID, accountID, url); err != nil {
		return nil, fmt.Errorf("save stripe account: %w", err)
	}

	s.log.Infow("Trainer onboarding link issued", "trainerID", actor.UserID, "accountID", accountID)
	return &domain.OnboardingLink{AccountID: accountID, URL: url}, nil
}
