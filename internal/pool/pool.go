// Package pool owns at most one live authenticated platform session per
// user, bounded by a global concurrency ceiling.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/dperhar/Karma-app-sub001/internal/health"
	"github.com/dperhar/Karma-app-sub001/internal/models"
	"github.com/dperhar/Karma-app-sub001/internal/platform"
	"github.com/dperhar/Karma-app-sub001/internal/repository"
	"github.com/dperhar/Karma-app-sub001/internal/vault"
)

// ErrNoValidCredential means the user has no usable stored credential and
// must re-authenticate. Terminal for the current attempt; never retried.
var ErrNoValidCredential = errors.New("no valid credential for user")

type Config struct {
	MaxSessions    int
	IdleTTL        time.Duration
	AcquireTimeout time.Duration
	ProbeTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 50
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 10 * time.Minute
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	return c
}

// Session is a pooled live connection handle.
type Session struct {
	UserID   uint
	Client   platform.Client
	Identity platform.Identity

	lastUsed time.Time
}

// Pool caches one session per user, evicts idle ones, and blocks (with
// timeout) when the global cap is reached.
type Pool struct {
	cfg     Config
	vault   *vault.Vault
	conns   repository.ConnectionRepositoryInterface
	factory platform.ClientFactory
	monitor *health.Monitor
	log     *zap.Logger

	mu      sync.Mutex
	entries map[uint]*Session
	locks   map[uint]*sync.Mutex // serializes slow-path dials per user
	sem     *semaphore.Weighted

	stopEvict chan struct{}
	evictOnce sync.Once
}

func New(cfg Config, v *vault.Vault, conns repository.ConnectionRepositoryInterface, factory platform.ClientFactory, monitor *health.Monitor, log *zap.Logger) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:       cfg,
		vault:     v,
		conns:     conns,
		factory:   factory,
		monitor:   monitor,
		log:       log,
		entries:   make(map[uint]*Session),
		locks:     make(map[uint]*sync.Mutex),
		sem:       semaphore.NewWeighted(int64(cfg.MaxSessions)),
		stopEvict: make(chan struct{}),
	}
	go p.evictLoop()
	return p
}

func (p *Pool) userLock(userID uint) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[userID] = l
	}
	return l
}

func (p *Pool) cached(userID uint) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.entries[userID]; ok {
		s.lastUsed = time.Now()
		return s
	}
	return nil
}

// Acquire returns the user's live session, establishing one from the
// stored credential if none is cached. A cached session is returned
// without any network call.
func (p *Pool) Acquire(ctx context.Context, userID uint) (*Session, error) {
	if s := p.cached(userID); s != nil {
		return s, nil
	}

	// One dial at a time per user; a concurrent caller waits here and then
	// hits the cache.
	lock := p.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if s := p.cached(userID); s != nil {
		return s, nil
	}
	return p.dial(ctx, userID)
}

func (p *Pool) dial(ctx context.Context, userID uint) (*Session, error) {
	conn, err := p.conns.FindByUserID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoValidCredential
	}
	if err != nil {
		return nil, err
	}
	if !conn.Usable() {
		return nil, ErrNoValidCredential
	}

	session, err := p.vault.Open(conn.EncryptedSession)
	if err != nil {
		// Corrupt blob: the credential is unusable, mark it so the caller
		// is told to re-authenticate instead of retrying.
		p.log.Warn("stored credential failed to decrypt",
			zap.Uint("user_id", userID), zap.Error(err))
		if merr := p.conns.SetValidationStatus(userID, models.ValidationInvalid, time.Now()); merr != nil {
			p.log.Error("failed to mark credential invalid", zap.Uint("user_id", userID), zap.Error(merr))
		}
		return nil, ErrNoValidCredential
	}

	// Bounded wait for a slot under the global cap.
	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()
	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		return nil, &platform.TransientError{Op: "acquire slot", Err: err}
	}

	client, err := p.factory.Dial(ctx, session)
	if err != nil {
		p.sem.Release(1)
		return nil, p.classifyDialFailure(userID, "dial", err)
	}

	probeCtx, probeCancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	identity, err := client.Me(probeCtx)
	probeCancel()
	if err != nil {
		_ = client.Close()
		p.sem.Release(1)
		return nil, p.classifyDialFailure(userID, "probe", err)
	}

	now := time.Now()
	if err := p.conns.SetValidationStatus(userID, models.ValidationValid, now); err != nil {
		p.log.Error("failed to record validation", zap.Uint("user_id", userID), zap.Error(err))
	}

	s := &Session{UserID: userID, Client: client, Identity: *identity, lastUsed: now}
	p.mu.Lock()
	p.entries[userID] = s
	p.mu.Unlock()
	p.monitor.SessionOpened(userID)
	p.log.Info("platform session established",
		zap.Uint("user_id", userID),
		zap.Int64("platform_user_id", identity.PlatformUserID))
	return s, nil
}

// classifyDialFailure maps a connection failure onto the error taxonomy:
// auth rejection invalidates the stored credential, anything else stays
// retryable.
func (p *Pool) classifyDialFailure(userID uint, op string, err error) error {
	if platform.IsAuth(err) {
		p.log.Warn("platform rejected stored session",
			zap.Uint("user_id", userID), zap.Error(err))
		if merr := p.conns.SetValidationStatus(userID, models.ValidationInvalid, time.Now()); merr != nil {
			p.log.Error("failed to mark credential invalid", zap.Uint("user_id", userID), zap.Error(merr))
		}
		return ErrNoValidCredential
	}
	if platform.IsTransient(err) {
		return err
	}
	return &platform.TransientError{Op: op, Err: err}
}

// Release closes and removes the user's cached session.
func (p *Pool) Release(userID uint) {
	p.mu.Lock()
	s, ok := p.entries[userID]
	if ok {
		delete(p.entries, userID)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	p.closeSession(s)
}

func (p *Pool) closeSession(s *Session) {
	if err := s.Client.Close(); err != nil {
		p.log.Warn("error closing platform session", zap.Uint("user_id", s.UserID), zap.Error(err))
	}
	p.sem.Release(1)
	p.monitor.SessionClosed(s.UserID)
}

// DisconnectAll tears down every cached session, for process shutdown.
func (p *Pool) DisconnectAll() {
	p.evictOnce.Do(func() { close(p.stopEvict) })

	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.entries))
	for _, s := range p.entries {
		sessions = append(sessions, s)
	}
	p.entries = make(map[uint]*Session)
	p.mu.Unlock()

	for _, s := range sessions {
		p.closeSession(s)
	}
}

func (p *Pool) evictLoop() {
	ticker := time.NewTicker(p.cfg.IdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopEvict:
			return
		case <-ticker.C:
			p.evictIdle()
		}
	}
}

func (p *Pool) evictIdle() {
	cutoff := time.Now().Add(-p.cfg.IdleTTL)

	p.mu.Lock()
	var idle []*Session
	for userID, s := range p.entries {
		if s.lastUsed.Before(cutoff) {
			idle = append(idle, s)
			delete(p.entries, userID)
		}
	}
	p.mu.Unlock()

	for _, s := range idle {
		p.log.Debug("evicting idle platform session", zap.Uint("user_id", s.UserID))
		p.closeSession(s)
	}
}

// Live returns the number of cached sessions.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
