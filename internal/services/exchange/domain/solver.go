package domain

import (
	"math/rand"
	"sort"

	apperrors "github.com/giftring/giftring/internal/errors"
)

// DefaultMaxAttempts bounds the rejection-sampling loop. Exclusion sets in
// practice are sparse (a few couples or relatives per group), so sampling
// converges within a handful of attempts; the cap turns pathological rule
// sets into an honest infeasibility report instead of an unbounded loop.
// The cap is correctness-relevant: exceeding it is a definite Infeasible
// signal, not a transient failure to retry.
const DefaultMaxAttempts = 1000

var (
	// ErrInfeasible indicates no valid pairing was found within the attempt
	// budget. The rule set is unsatisfiable (or close enough to it); callers
	// should surface it as "loosen your exclusion rules", not retry.
	ErrInfeasible = apperrors.New(apperrors.CodeExchangeInfeasibleExclusions, "no feasible pairing within attempt budget")
	// ErrInvalidMaxAttempts indicates a non-positive attempt budget.
	ErrInvalidMaxAttempts = apperrors.New(apperrors.CodeSolverInvalidMaxAttempts, "max attempts must be at least 1")
	// ErrNoParticipants indicates an empty participant set.
	ErrNoParticipants = apperrors.New(apperrors.CodeSolverNoParticipants, "at least one participant is required")
)

// SolverConfig controls one solve run.
//
// # Determinism
//
// Solve is deterministic with respect to Seed: the same Seed and the same
// participant set (regardless of input order) always produce the same
// pairing or the same infeasibility outcome.
type SolverConfig struct {
	// MaxAttempts caps the rejection-sampling loop; DefaultMaxAttempts when 0.
	MaxAttempts int
	Seed        int64
}

// Pairing maps each giver to their receiver. A valid pairing is a bijection
// over the participant set with no fixed points and no excluded pair.
type Pairing map[string]string

// Solve produces a valid giver-to-receiver pairing for the participants, or
// ErrInfeasible if no candidate passed validation within the attempt budget.
//
// Each attempt draws a uniform permutation of the participants (unbiased
// Fisher-Yates), pairs participant i with permuted[i], and validates the
// whole candidate in one pass. The first valid candidate wins.
func Solve(participantIDs []string, graph Graph, config SolverConfig) (Pairing, error) {
	maxAttempts := config.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if maxAttempts < 0 {
		return nil, ErrInvalidMaxAttempts
	}
	if len(participantIDs) == 0 {
		return nil, ErrNoParticipants
	}

	// Sort a copy so results depend only on the participant set and seed.
	givers := make([]string, len(participantIDs))
	copy(givers, participantIDs)
	sort.Strings(givers)

	rng := rand.New(rand.NewSource(config.Seed))
	receivers := make([]string, len(givers))

	for attempt := 0; attempt < maxAttempts; attempt++ {
		copy(receivers, givers)
		shuffle(receivers, rng)

		if pairing := validate(givers, receivers, graph); pairing != nil {
			return pairing, nil
		}
	}

	return nil, ErrInfeasible
}

// shuffle permutes ids in place with an unbiased Fisher-Yates walk: each
// element i swaps with a uniformly chosen index in [0, i].
func shuffle(ids []string, rng *rand.Rand) {
	for i := len(ids) - 1; i >= 1; i-- {
		j := rng.Intn(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}

// validate checks the full candidate in one pass and returns the pairing,
// or nil on the first self-assignment or excluded pair.
func validate(givers, receivers []string, graph Graph) Pairing {
	pairing := make(Pairing, len(givers))
	for i, giver := range givers {
		receiver := receivers[i]
		if giver == receiver {
			return nil
		}
		if graph.Excludes(giver, receiver) {
			return nil
		}
		pairing[giver] = receiver
	}
	return pairing
}
