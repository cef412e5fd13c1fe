package optimization

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Solver attempts one kind of program. Implementations hold no state across
// calls and must be safe for concurrent use.
type Solver interface {
	Name() string
	Supports(k Kind) bool
	Solve(ctx context.Context, p Problem) (Solution, error)
}

// DefaultBudget bounds a single solver attempt.
const DefaultBudget = 2 * time.Second

// Registry dispatches programs to registered solvers. A nil *Registry has no
// solvers and reports ErrUnavailable for everything.
type Registry struct {
	mu      sync.RWMutex
	solvers map[string]Solver
	order   []string
	budget  time.Duration
	log     zerolog.Logger
}

// NewRegistry creates an empty registry whose attempts are bounded by budget.
func NewRegistry(budget time.Duration, log zerolog.Logger) *Registry {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Registry{
		solvers: make(map[string]Solver),
		budget:  budget,
		log:     log.With().Str("component", "solver_registry").Logger(),
	}
}

// NewDefaultRegistry registers the built-in solvers: pgd and bfgs for QPs,
// simplex for LPs.
func NewDefaultRegistry(budget time.Duration, log zerolog.Logger) *Registry {
	r := NewRegistry(budget, log)
	r.Register(NewPGD())
	r.Register(NewPenalty())
	r.Register(NewSimplex())
	return r
}

// Register adds or replaces a solver under its name.
func (r *Registry) Register(s Solver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.solvers[s.Name()]; !exists {
		r.order = append(r.order, s.Name())
	}
	r.solvers[s.Name()] = s
}

// Names lists registered solvers in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Available reports whether any registered solver handles kind.
func (r *Registry) Available(k Kind) bool {
	return len(r.candidates(k, nil)) > 0
}

// SolveQP solves a quadratic program; see Solve.
func (r *Registry) SolveQP(ctx context.Context, qp *QuadraticProgram, preferred ...string) (Solution, error) {
	return r.Solve(ctx, qp, preferred...)
}

// SolveLP solves a linear program; see Solve.
func (r *Registry) SolveLP(ctx context.Context, prog *LinearProgram, preferred ...string) (Solution, error) {
	return r.Solve(ctx, prog, preferred...)
}

// Solve tries the preferred solvers in order, or every solver supporting the
// kind when none of the preferred ones is registered. The first verified
// feasible answer wins. Each attempt runs under the registry budget and
// panics are reported as errors.
func (r *Registry) Solve(ctx context.Context, p Problem, preferred ...string) (Solution, error) {
	candidates := r.candidates(p.Kind(), preferred)
	if len(candidates) == 0 {
		return Solution{}, fmt.Errorf("%w for %s", ErrUnavailable, p.Kind())
	}
	if err := p.constraintSet().Validate(p.Dim()); err != nil {
		return Solution{}, fmt.Errorf("%w: %v", ErrInfeasible, err)
	}

	var errs []error
	for _, s := range candidates {
		sol, err := r.attempt(ctx, s, p)
		if err == nil {
			err = verify(p, sol.X)
		}
		if err == nil {
			sol.Solver = s.Name()
			return sol, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Solution{}, ctxErr
		}
		r.log.Debug().Err(err).Str("solver", s.Name()).Str("kind", p.Kind().String()).Msg("Solver attempt failed")
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return Solution{}, fmt.Errorf("%w: %w", ErrInfeasible, errors.Join(errs...))
}

func (r *Registry) candidates(k Kind, preferred []string) []Solver {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Solver
	for _, name := range preferred {
		if s, ok := r.solvers[name]; ok && s.Supports(k) {
			out = append(out, s)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, name := range r.order {
		if s := r.solvers[name]; s.Supports(k) {
			out = append(out, s)
		}
	}
	return out
}

type attemptResult struct {
	sol Solution
	err error
}

// attempt runs one solver under the time budget. A solver that ignores its
// context is abandoned when the budget expires.
func (r *Registry) attempt(ctx context.Context, s Solver, p Problem) (Solution, error) {
	ctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error().
					Interface("panic", rec).
					Str("solver", s.Name()).
					Str("stack", string(debug.Stack())).
					Msg("Solver panicked")
				done <- attemptResult{err: fmt.Errorf("solver panicked: %v", rec)}
			}
		}()
		sol, err := s.Solve(ctx, p)
		done <- attemptResult{sol: sol, err: err}
	}()

	select {
	case res := <-done:
		return res.sol, res.err
	case <-ctx.Done():
		return Solution{}, fmt.Errorf("attempt abandoned: %w", ctx.Err())
	}
}
