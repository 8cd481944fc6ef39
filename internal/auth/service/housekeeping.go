package service

import (
	"context"
	"log/slog"
	"time"
)

// HousekeepingService sweeps terminal rows on two cadences: token rows
// hourly, authorization codes every 15 minutes. Both sweeps only ever
// match rows already unusable, so they are safe alongside live
// traffic.
type HousekeepingService struct {
	Codes  *CodeService
	Tokens *TokenService
	Logger *slog.Logger

	TokenInterval time.Duration
	CodeInterval  time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService wires the sweeper. Non-positive intervals
// fall back to 1 hour for tokens and 15 minutes for codes.
func NewHousekeepingService(codes *CodeService, tokens *TokenService, logger *slog.Logger, tokenInterval, codeInterval time.Duration) *HousekeepingService {
	if tokenInterval <= 0 {
		tokenInterval = time.Hour
	}
	if codeInterval <= 0 {
		codeInterval = 15 * time.Minute
	}

	return &HousekeepingService{
		Codes:         codes,
		Tokens:        tokens,
		Logger:        logger,
		TokenInterval: tokenInterval,
		CodeInterval:  codeInterval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut
// it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping started",
		slog.Duration("token_interval", s.TokenInterval),
		slog.Duration("code_interval", s.CodeInterval),
	)
}

// Stop shuts the worker down, blocking until any in-progress sweep
// finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	tokenTicker := time.NewTicker(s.TokenInterval)
	defer tokenTicker.Stop()
	codeTicker := time.NewTicker(s.CodeInterval)
	defer codeTicker.Stop()

	// Sweep once on startup so a restart doesn't inherit a backlog.
	s.sweepCodes()
	s.sweepTokens()

	for {
		select {
		case <-tokenTicker.C:
			s.sweepTokens()
		case <-codeTicker.C:
			s.sweepCodes()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) sweepTokens() {
	removed, err := s.Tokens.CleanupExpired(context.Background())
	if err != nil {
		s.Logger.Error("token sweep failed", slog.Any("error", err))
		return
	}
	if removed > 0 {
		s.Logger.Debug("token sweep completed", slog.Int64("removed", removed))
	}
}

func (s *HousekeepingService) sweepCodes() {
	removed, err := s.Codes.CleanupExpired(context.Background())
	if err != nil {
		s.Logger.Error("authorization code sweep failed", slog.Any("error", err))
		return
	}
	if removed > 0 {
		s.Logger.Debug("authorization code sweep completed", slog.Int64("removed", removed))
	}
}
