// Package applier contains the automation session the orchestration core
// runs as its task. The session sequences and paces applications against a
// Board; the Board implementation owns the actual browsing, scraping, and
// form filling, which the core treats as opaque.
package applier

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/waqasshaukat/job-applicator/internal/joblog"
)

// Credentials identify the account the session applies from.
type Credentials struct {
	Email    string
	Password string
}

// Options control what the session applies to and how fast.
type Options struct {
	Keywords []string
	Location string

	// MaxApplications caps how many postings the session applies to.
	MaxApplications int

	// ApplicationsPerMinute paces applications so the session reads as
	// human-driven rather than scripted.
	ApplicationsPerMinute float64
}

const (
	defaultMaxApplications       = 25
	defaultApplicationsPerMinute = 2
)

// Posting is one job listing surfaced by the Board.
type Posting struct {
	ID      string
	Title   string
	Company string
}

// Board is the job-board client a Session drives. NextPosting returns
// io.EOF once the search is exhausted. Implementations must honor ctx so a
// stop request interrupts in-flight browsing.
type Board interface {
	Login(ctx context.Context, creds Credentials) error
	NextPosting(ctx context.Context) (Posting, error)
	Apply(ctx context.Context, posting Posting) error
}

// Session is one cancellable application run. Its Run method has the
// jobmanager.TaskFunc shape.
type Session struct {
	creds   Credentials
	opts    Options
	board   Board
	limiter *rate.Limiter
}

// NewSession creates a Session applying creds against board with the given
// options. Zero option values fall back to conservative defaults.
func NewSession(creds Credentials, opts Options, board Board) *Session {
	if opts.MaxApplications <= 0 {
		opts.MaxApplications = defaultMaxApplications
	}

	if opts.ApplicationsPerMinute <= 0 {
		opts.ApplicationsPerMinute = defaultApplicationsPerMinute
	}

	return &Session{
		creds:   creds,
		opts:    opts,
		board:   board,
		limiter: rate.NewLimiter(rate.Limit(opts.ApplicationsPerMinute/60.0), 1),
	}
}

// Run executes the session until the search is exhausted, the application
// cap is reached, or ctx is cancelled. It checks ctx between postings, so a
// stop request takes effect at the next safe point rather than mid-form.
func (s *Session) Run(ctx context.Context) error {
	log := joblog.FromContext(ctx)

	log.Info("session started",
		zap.String("account", s.creds.Email),
		zap.Strings("keywords", s.opts.Keywords),
		zap.String("location", s.opts.Location))

	if err := s.board.Login(ctx, s.creds); err != nil {
		return fmt.Errorf("log in to board: %w", err)
	}

	log.Info("logged in, starting search")

	applied := 0
	for applied < s.opts.MaxApplications {
		// Pacing doubles as the cancellation checkpoint: Wait returns as
		// soon as ctx is cancelled.
		if err := s.limiter.Wait(ctx); err != nil {
			log.Info("session interrupted", zap.Int("applications_submitted", applied))
			return err
		}

		posting, err := s.board.NextPosting(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return fmt.Errorf("fetch next posting: %w", err)
		}

		if err := s.board.Apply(ctx, posting); err != nil {
			// A single rejected application is not fatal to the session.
			log.Warn("application skipped",
				zap.String("posting", posting.ID),
				zap.Error(err))
			continue
		}

		applied++

		log.Info("application submitted",
			zap.String("posting", posting.ID),
			zap.String("title", posting.Title),
			zap.String("company", posting.Company),
			zap.Int("total", applied))
	}

	if applied >= s.opts.MaxApplications {
		log.Info("application cap reached", zap.Int("applications_submitted", applied))
	} else {
		log.Info("search exhausted", zap.Int("applications_submitted", applied))
	}

	return nil
}
