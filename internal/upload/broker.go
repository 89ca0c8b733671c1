package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"leaflens/internal/imaging"
	"leaflens/internal/logging"
)

// Broker tries an ordered list of strategies; the first success wins. A
// failing strategy falls through to the next rather than aborting.
type Broker struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewBroker builds a broker over strategies in chain order.
func NewBroker(logger *slog.Logger, strategies ...Strategy) *Broker {
	return &Broker{
		strategies: strategies,
		logger:     logging.NewComponentLogger(logger, "upload-broker"),
	}
}

// Chain selects strategies by name in the configured order. Unknown or
// unavailable names are skipped.
func Chain(names []string, available map[string]Strategy) []Strategy {
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		if s, ok := available[strings.ToLower(strings.TrimSpace(name))]; ok && s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Strategies returns the chain names in order.
func (b *Broker) Strategies() []string {
	names := make([]string, len(b.strategies))
	for i, s := range b.strategies {
		names[i] = s.Name()
	}
	return names
}

// Store persists image and returns a reference only after the chosen path
// fully succeeded, including finalize for signed transfers.
func (b *Broker) Store(ctx context.Context, image imaging.CompressedImage, hint Hint) (Ref, error) {
	logger := logging.WithContext(ctx, b.logger)
	failed := &FailedError{}

	for _, strategy := range b.strategies {
		name := strategy.Name()
		if !strategy.Viable(image, hint) {
			logger.Debug("upload strategy not viable",
				logging.Strategy(name),
				logging.Int("size", image.Size()))
			continue
		}

		started := time.Now()
		ref, err := strategy.Attempt(ctx, image, hint)
		if err == nil {
			if !ref.Valid() {
				err = fmt.Errorf("%s returned an incomplete reference %q", name, ref.String())
			} else {
				ref.Strategy = name
				if ref.ContentType == "" {
					ref.ContentType = image.ContentType
				}
				if ref.Size == 0 {
					ref.Size = image.Size()
				}
				logger.Info("image stored",
					logging.String(logging.FieldEventType, "upload_complete"),
					logging.Strategy(name),
					logging.String("ref", ref.String()),
					logging.Int("size", ref.Size),
					logging.Duration("elapsed", time.Since(started)))
				return ref, nil
			}
		}

		failed.Attempts = append(failed.Attempts, StrategyError{Strategy: name, Err: err})
		failed.Err = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			if !errors.Is(err, ctxErr) {
				failed.Err = fmt.Errorf("%w: %w", ctxErr, err)
			}
			return Ref{}, failed
		}

		reason := "error"
		if errors.Is(err, ErrUnsupported) {
			reason = "unsupported"
		}
		logging.WarnWithContext(logger, "upload strategy failed; falling back", "strategy_fallback",
			logging.Strategy(name),
			logging.String("reason", reason),
			logging.Error(err),
			logging.String(logging.FieldImpact, "trying the next upload strategy"))
	}

	if failed.Err == nil {
		failed.Err = errors.New("no viable upload strategy configured")
	}
	return Ref{}, failed
}
