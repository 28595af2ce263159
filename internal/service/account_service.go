package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/dperhar/Karma-app-sub001/internal/models"
	"github.com/dperhar/Karma-app-sub001/internal/pool"
	"github.com/dperhar/Karma-app-sub001/internal/repository"
	"github.com/dperhar/Karma-app-sub001/internal/vault"
)

// AccountService wires the authentication flow into the sync core: it
// seals freshly established platform credentials and soft-invalidates
// them on logout.
type AccountService struct {
	vault *vault.Vault
	users repository.UserRepositoryInterface
	conns repository.ConnectionRepositoryInterface
	pool  *pool.Pool
	log   *zap.Logger
}

func NewAccountService(v *vault.Vault, users repository.UserRepositoryInterface, conns repository.ConnectionRepositoryInterface, p *pool.Pool, log *zap.Logger) *AccountService {
	return &AccountService{vault: v, users: users, conns: conns, pool: p, log: log}
}

// Me returns the user's profile.
func (s *AccountService) Me(userID uint) (*models.UserResponse, error) {
	user, err := s.users.FindByID(userID)
	if err != nil {
		return nil, err
	}
	resp := user.ToResponse()
	return &resp, nil
}

// StoreCredential seals a newly established platform session and upserts
// the user's single stored connection as valid.
func (s *AccountService) StoreCredential(userID uint, session []byte) (*models.ConnectionResponse, error) {
	blob, err := s.vault.Seal(session)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	conn := &models.Connection{
		UserID:           userID,
		EncryptedSession: blob,
		Active:           true,
		ValidationStatus: models.ValidationValid,
		LastValidatedAt:  &now,
	}
	if err := s.conns.Upsert(conn); err != nil {
		return nil, err
	}

	// A previously pooled session was built from the old credential.
	s.pool.Release(userID)

	s.log.Info("credential stored", zap.Uint("user_id", userID))
	resp := conn.ToResponse()
	return &resp, nil
}

// Logout soft-invalidates the stored credential and tears down the pooled
// session. The connection row is kept.
func (s *AccountService) Logout(userID uint) error {
	if err := s.conns.Deactivate(userID); err != nil {
		return err
	}
	s.pool.Release(userID)
	s.log.Info("credential revoked", zap.Uint("user_id", userID))
	return nil
}

// Status returns the stored connection's liveness bookkeeping.
func (s *AccountService) Status(userID uint) (*models.ConnectionResponse, error) {
	conn, err := s.conns.FindByUserID(userID)
	if err != nil {
		return nil, err
	}
	resp := conn.ToResponse()
	return &resp, nil
}
