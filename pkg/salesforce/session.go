package salesforce

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/datastreamhq/forcetap/pkg/errors"
)

// Platform token endpoints for the refresh-token grant.
const (
	loginURLProduction = "https://login.salesforce.com/services/oauth2/token"
	loginURLSandbox    = "https://test.salesforce.com/services/oauth2/token"
)

// refreshTokenExpirationPeriod is how often the session re-runs the
// refresh-token grant. Access tokens last longer than this in practice;
// renewing early keeps long-running extractions off the expiry edge.
const refreshTokenExpirationPeriod = 900 * time.Second

// Session manages the OAuth2 refresh-token session against the platform
// token endpoint. After Login succeeds, a background goroutine renews
// the access token on a fixed period until Close is called. Callers take
// a consistent (token, instance URL) pair via Snapshot at call time.
type Session struct {
	config *Config
	logger *zap.Logger
	oauth  *oauth2.Config

	mu          sync.RWMutex
	accessToken string
	instanceURL string
	renewErr    error

	renewOnce   sync.Once
	renewCancel context.CancelFunc
	renewDone   chan struct{}
}

// NewSession creates a session manager. No network traffic happens until
// Login is called.
func NewSession(cfg *Config, logger *zap.Logger) *Session {
	loginURL := cfg.LoginURL
	if loginURL == "" {
		if cfg.Sandbox {
			loginURL = loginURLSandbox
		} else {
			loginURL = loginURLProduction
		}
	}

	return &Session{
		config: cfg,
		logger: logger.With(zap.String("component", "session")),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  loginURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// Login runs the refresh-token grant and installs the resulting access
// token and instance URL atomically. The first successful Login starts
// the periodic renewal goroutine.
func (s *Session) Login(ctx context.Context) error {
	// A fresh TokenSource per call forces an actual grant round trip
	// instead of serving a cached token.
	seed := &oauth2.Token{RefreshToken: s.config.RefreshToken}
	tok, err := s.oauth.TokenSource(ctx, seed).Token()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeAuthentication, "OAuth token refresh failed")
	}

	instanceURL, _ := tok.Extra("instance_url").(string)
	if instanceURL == "" {
		return errors.New(errors.ErrorTypeAuthentication, "token response missing instance_url")
	}

	s.mu.Lock()
	s.accessToken = tok.AccessToken
	s.instanceURL = instanceURL
	s.renewErr = nil
	s.mu.Unlock()

	s.logger.Info("session established", zap.String("instance_url", instanceURL))

	s.renewOnce.Do(s.startRenewal)
	return nil
}

func (s *Session) startRenewal() {
	ctx, cancel := context.WithCancel(context.Background())
	s.renewCancel = cancel
	s.renewDone = make(chan struct{})

	go func() {
		defer close(s.renewDone)
		ticker := time.NewTicker(refreshTokenExpirationPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.logger.Info("renewing session token")
				if err := s.Login(ctx); err != nil {
					// Renewal failure poisons the session: the next
					// Snapshot surfaces the error instead of handing
					// out a token that is about to expire.
					s.logger.Error("session renewal failed", zap.Error(err))
					s.mu.Lock()
					s.renewErr = err
					s.mu.Unlock()
					return
				}
			}
		}
	}()
}

// Snapshot returns the current access token and instance URL as a
// consistent pair. It fails if Login has not succeeded yet or a
// background renewal has failed.
func (s *Session) Snapshot() (accessToken, instanceURL string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.renewErr != nil {
		return "", "", s.renewErr
	}
	if s.accessToken == "" {
		return "", "", errors.New(errors.ErrorTypeAuthentication, "not logged in")
	}
	return s.accessToken, s.instanceURL, nil
}

// Close stops the renewal goroutine and waits for it to exit. Safe to
// call multiple times and before Login.
func (s *Session) Close() {
	if s.renewCancel == nil {
		return
	}
	s.renewCancel()
	<-s.renewDone
	s.renewCancel = nil
}
