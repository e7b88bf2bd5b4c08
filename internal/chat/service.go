package chat

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// ServiceConfig carries the retry/timeout envelope settings.
type ServiceConfig struct {
	// Deadline bounds one whole Process call, retries included.
	Deadline time.Duration
	// RetryBudget is the number of re-runs allowed after the first
	// attempt when the generation service signals throttling.
	RetryBudget int
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration
}

type service struct {
	gen        Generator
	screen     SafetyScreen // nil disables safety screening
	classifier *Classifier
	registry   *Registry
	cfg        ServiceConfig

	sleep func(ctx context.Context, d time.Duration) error
}

func NewService(gen Generator, screen SafetyScreen, classifier *Classifier, registry *Registry, cfg ServiceConfig) Service {
	return &service{
		gen:        gen,
		screen:     screen,
		classifier: classifier,
		registry:   registry,
		cfg:        cfg,
		sleep:      sleepCtx,
	}
}

// Process runs the pipeline under a single deadline computed at entry.
// Only upstream throttling errors are retried; each retry re-seeds the
// history and re-runs the whole pipeline.
func (s *service) Process(ctx context.Context, req ChatRequest) (*PipelineResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Deadline)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.BackoffBase
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = s.cfg.Deadline
	bo.MaxElapsedTime = 0
	bo.Reset()

	for attempt := 0; ; attempt++ {
		res, err := s.runOnce(ctx, req)
		if err == nil {
			return res, nil
		}
		if ctxErr := timeoutErr(ctx, err); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, ErrUpstreamRateLimited) || attempt >= s.cfg.RetryBudget {
			return nil, err
		}

		delay := bo.NextBackOff()
		log.Warn().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("upstream throttled, retrying pipeline")
		if err := s.sleep(ctx, delay); err != nil {
			return nil, ErrTimeout
		}
	}
}

func (s *service) runOnce(ctx context.Context, req ChatRequest) (*PipelineResult, error) {
	start := time.Now()

	history := NewHistory(req.Text)
	wf := &Workflow{InputAsText: req.Text}
	text := req.Text

	if s.screen != nil {
		sr, err := s.screen.Screen(ctx, req.Text, history, wf)
		if err != nil {
			return nil, err
		}
		if sr.Tripped {
			log.Info().Msg("safety screen tripped")
			return &PipelineResult{
				ScreenFailure: sr.FailOutput,
				ElapsedMs:     time.Since(start).Milliseconds(),
			}, nil
		}
		if sr.SafeText != "" {
			text = sr.SafeText
		}
	}

	category, err := s.classifier.Classify(ctx, text, &history)
	if err != nil {
		return nil, err
	}

	persona := s.registry.Lookup(category)
	run, err := s.gen.Run(ctx, persona, history)
	if err != nil {
		return nil, err
	}
	history = append(history, run.NewTurns...)

	elapsed := time.Since(start)
	log.Info().
		Str("classification", string(category)).
		Str("persona", persona.Name).
		Int("turns", len(history)).
		Dur("elapsed", elapsed).
		Msg("pipeline complete")

	return &PipelineResult{
		Response:       run.Text,
		Classification: category,
		ElapsedMs:      elapsed.Milliseconds(),
	}, nil
}

// timeoutErr maps deadline expiry to the distinct timeout kind so the
// boundary can show a "taking too long" message instead of a generic
// failure.
func timeoutErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
