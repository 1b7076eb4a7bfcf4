package sequence

import (
	"context"
	"fmt"
	"strings"

	"budgetsmart/internal/log"
)

// Outcome describes where a guarded call stands among the calls for its key.
type Outcome struct {
	Seq uint64
	// Superseded is true when a newer call for the same key was issued
	// before this one finished. Its result should be discarded.
	Superseded bool
}

// Guard applies last-issued-wins to calls sharing a key.
type Guard struct {
	seq    Sequencer
	logger *log.Logger
}

func NewGuard(seq Sequencer, logger *log.Logger) *Guard {
	if logger == nil {
		logger = log.Discard()
	}
	return &Guard{seq: seq, logger: logger.WithComponent(log.ComponentSequence)}
}

// Key builds a guard key from its parts, e.g. Key("u1", "budget_status").
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Run issues a number for key, runs fn and reports whether a newer number
// was issued meanwhile. The error of fn is returned unchanged.
func (g *Guard) Run(ctx context.Context, key string, fn func(ctx context.Context) error) (Outcome, error) {
	n, err := g.seq.Next(ctx, key)
	if err != nil {
		return Outcome{}, fmt.Errorf("issue sequence: %w", err)
	}

	if err := fn(ctx); err != nil {
		return Outcome{Seq: n}, err
	}

	latest, err := g.seq.Latest(ctx, key)
	if err != nil {
		return Outcome{Seq: n}, fmt.Errorf("read latest sequence: %w", err)
	}
	out := Outcome{Seq: n, Superseded: latest > n}
	if out.Superseded {
		g.logger.DebugContext(ctx, "Result superseded by a newer request",
			log.FieldSequence, n,
			"latest_sequence", latest,
			"key", key)
	}
	return out, nil
}
