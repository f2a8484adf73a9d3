// Package solver computes constrained two-team splits. It minimizes a
// weighted imbalance score over label counts and team sizes, subject to
// a single hard constraint: every bearer of the same_team label lands on
// one team.
//
// Small inputs are solved exactly by enumerating every assignment; larger
// ones fall back to a greedy placement refined by 2-opt swaps.
package solver

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/CinitSwift/divide/internal/domain"
)

// Member is the solver's view of one room member.
type Member struct {
	ID     uuid.UUID
	Name   string
	Labels []domain.Label
}

// Options tune a single Solve call.
type Options struct {
	// Rand drives every random choice. Pass a seeded source for
	// reproducible runs; nil falls back to a time-seeded one.
	Rand *rand.Rand
	// Debug records a trace of solver decisions in Result.Trace.
	Debug bool
}

// Result is the computed split, each team in placement order.
type Result struct {
	TeamA     []Member
	TeamB     []Member
	Algorithm string // "exact" or "greedy"
	Trace     []string
}

const (
	labelWeight = 5
	sizeWeight  = 3

	// exactLimit caps the exhaustive search at 2^12 assignments.
	exactLimit = 12
	maxSweeps  = 100
)

// Members carrying these two exact display names are pre-assigned to a
// shared random team 90% of the time, before any rule is applied.
var pairedNames = [2]string{"葳蕤", "兔子"}

const pairChance = 0.9

type side int

const (
	sideNone side = iota
	sideA
	sideB
)

func (s side) idx() int { return int(s) - 1 }

func (s side) String() string {
	switch s {
	case sideA:
		return "A"
	case sideB:
		return "B"
	}
	return "unassigned"
}

// Solve splits members into two teams under the given rules.
func Solve(members []Member, rules domain.LabelRules, opts Options) Result {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := newState(members, rules, opts.Debug)
	if len(members) == 0 {
		return s.result("exact")
	}

	s.preassignPair(rng)

	free := s.unassigned()
	if len(free) <= exactLimit {
		s.solveExact(free)
		return s.result("exact")
	}
	s.solveGreedy(rng, free)
	return s.result("greedy")
}

type state struct {
	members []Member

	even    []domain.Label // labels with rule=even, vocabulary order
	evenIdx map[domain.Label]int
	bearing [][]int // member -> indexes into even

	pin        domain.Label // the same_team label, if any
	hasPin     bool
	pinHolders []int // member indexes bearing pin

	team   []side
	fixed  []bool
	order  []int // placement order
	counts [2][]int
	sizes  [2]int

	debug bool
	trace []string
}

func newState(members []Member, rules domain.LabelRules, debug bool) *state {
	s := &state{
		members: members,
		evenIdx: make(map[domain.Label]int),
		bearing: make([][]int, len(members)),
		team:    make([]side, len(members)),
		fixed:   make([]bool, len(members)),
		debug:   debug,
	}

	for _, l := range domain.LabelVocabulary {
		if rules.RuleFor(l) == domain.RuleEven {
			s.evenIdx[l] = len(s.even)
			s.even = append(s.even, l)
		}
	}
	s.counts[0] = make([]int, len(s.even))
	s.counts[1] = make([]int, len(s.even))

	s.pin, s.hasPin = rules.SameTeamLabel()

	for i, m := range members {
		for _, l := range m.Labels {
			if li, ok := s.evenIdx[l]; ok {
				s.bearing[i] = append(s.bearing[i], li)
			}
			if s.hasPin && l == s.pin {
				s.pinHolders = append(s.pinHolders, i)
			}
		}
	}
	return s
}

// preassignPair pins the special name pair to one random team with
// probability pairChance. Runs before every other rule.
func (s *state) preassignPair(rng *rand.Rand) {
	ia, ib := -1, -1
	for i, m := range s.members {
		if ia < 0 && m.Name == pairedNames[0] {
			ia = i
		}
		if ib < 0 && m.Name == pairedNames[1] {
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return
	}
	if rng.Float64() >= pairChance {
		s.tracef("name pair present, left free this run")
		return
	}
	sd := sideA
	if rng.Intn(2) == 1 {
		sd = sideB
	}
	s.place(ia, sd)
	s.place(ib, sd)
	s.fixed[ia] = true
	s.fixed[ib] = true
	s.tracef("pre-assigned %q and %q to team %s", s.members[ia].Name, s.members[ib].Name, sd)
}

func (s *state) unassigned() []int {
	var free []int
	for i := range s.members {
		if s.team[i] == sideNone {
			free = append(free, i)
		}
	}
	return free
}

// =============================================================================
// Exact search
// =============================================================================

// solveExact enumerates every assignment of the free members. Bit set
// means team B, so mask 0 puts everyone on A and ties resolve toward the
// lowest mask (a lone member always ends up on A).
func (s *state) solveExact(free []int) {
	// Pre-assigned pin holders force the pin side.
	required := sideNone
	for _, h := range s.pinHolders {
		if s.team[h] != sideNone {
			required = s.team[h]
			break
		}
	}

	var freeHolders []int // positions within free
	if s.hasPin {
		for fi, i := range free {
			for _, h := range s.pinHolders {
				if h == i {
					freeHolders = append(freeHolders, fi)
					break
				}
			}
		}
	}

	bestScore := math.MaxInt
	bestMask := -1
	total := 1 << len(free)

	for mask := 0; mask < total; mask++ {
		if !pinSatisfied(mask, freeHolders, required) {
			continue
		}

		for fi, i := range free {
			s.place(i, maskSide(mask, fi))
		}
		sc := s.score()
		for fi := len(free) - 1; fi >= 0; fi-- {
			s.unplace(free[fi])
		}

		if sc < bestScore {
			bestScore = sc
			bestMask = mask
		}
	}

	for fi, i := range free {
		s.place(i, maskSide(bestMask, fi))
	}
	s.tracef("exact: %d assignments, best score %d (mask %b)", total, bestScore, bestMask)
}

func maskSide(mask, bit int) side {
	if mask>>bit&1 == 1 {
		return sideB
	}
	return sideA
}

// pinSatisfied reports whether the mask keeps all free pin holders on one
// side, and on the required side when a pre-assigned holder fixed it.
func pinSatisfied(mask int, freeHolders []int, required side) bool {
	if len(freeHolders) == 0 {
		return true
	}
	want := maskSide(mask, freeHolders[0])
	if required != sideNone && want != required {
		return false
	}
	for _, fi := range freeHolders[1:] {
		if maskSide(mask, fi) != want {
			return false
		}
	}
	return true
}

// =============================================================================
// Greedy + 2-opt fallback
// =============================================================================

func (s *state) solveGreedy(rng *rand.Rand, free []int) {
	// Pin all same_team holders to one side and freeze them there.
	if s.hasPin && len(s.pinHolders) > 0 {
		target := sideNone
		for _, h := range s.pinHolders {
			if s.team[h] != sideNone {
				target = s.team[h]
				break
			}
		}
		placed := false
		for _, h := range s.pinHolders {
			if s.team[h] != sideNone {
				continue
			}
			if target == sideNone {
				target = sideA
				if rng.Intn(2) == 1 {
					target = sideB
				}
			}
			s.place(h, target)
			s.fixed[h] = true
			placed = true
		}
		if placed {
			s.tracef("pinned %s holders to team %s", s.pin, target)
		}
	}

	// Members with the most even-rule labels are hardest to balance, so
	// they go first.
	var rest []int
	for _, i := range free {
		if s.team[i] == sideNone {
			rest = append(rest, i)
		}
	}
	sort.SliceStable(rest, func(a, b int) bool {
		return len(s.bearing[rest[a]]) > len(s.bearing[rest[b]])
	})

	for _, i := range rest {
		a := s.scoreIfPlaced(i, sideA)
		b := s.scoreIfPlaced(i, sideB)
		if a <= b {
			s.place(i, sideA)
			s.tracef("placed %q on A (A=%d B=%d)", s.members[i].Name, a, b)
		} else {
			s.place(i, sideB)
			s.tracef("placed %q on B (A=%d B=%d)", s.members[i].Name, a, b)
		}
	}

	s.twoOpt()
}

// twoOpt refines the split: each sweep commits the first swap that
// strictly reduces the score and restarts. Fixed members never move, so
// the same_team constraint and pre-assignments survive.
func (s *state) twoOpt() {
	current := s.score()
	for sweep := 0; sweep < maxSweeps; sweep++ {
		improved := false
		for i := 0; i < len(s.members) && !improved; i++ {
			if s.team[i] != sideA || s.fixed[i] {
				continue
			}
			for j := 0; j < len(s.members); j++ {
				if s.team[j] != sideB || s.fixed[j] {
					continue
				}
				s.reassign(i, sideB)
				s.reassign(j, sideA)
				if sc := s.score(); sc < current {
					s.tracef("swap %q<->%q improves %d -> %d", s.members[i].Name, s.members[j].Name, current, sc)
					current = sc
					improved = true
					break
				}
				s.reassign(i, sideA)
				s.reassign(j, sideB)
			}
		}
		if !improved {
			break
		}
	}
}

// =============================================================================
// Partition bookkeeping
// =============================================================================

func (s *state) place(i int, sd side) {
	s.team[i] = sd
	s.sizes[sd.idx()]++
	for _, li := range s.bearing[i] {
		s.counts[sd.idx()][li]++
	}
	s.order = append(s.order, i)
}

// unplace undoes the most recent place of member i.
func (s *state) unplace(i int) {
	sd := s.team[i]
	s.team[i] = sideNone
	s.sizes[sd.idx()]--
	for _, li := range s.bearing[i] {
		s.counts[sd.idx()][li]--
	}
	s.order = s.order[:len(s.order)-1]
}

// reassign moves an already placed member without touching the
// placement order. Used by swaps.
func (s *state) reassign(i int, to side) {
	from := s.team[i]
	s.sizes[from.idx()]--
	s.sizes[to.idx()]++
	for _, li := range s.bearing[i] {
		s.counts[from.idx()][li]--
		s.counts[to.idx()][li]++
	}
	s.team[i] = to
}

func (s *state) score() int {
	total := 0
	for li := range s.even {
		total += labelWeight * abs(s.counts[0][li]-s.counts[1][li])
	}
	total += sizeWeight * abs(s.sizes[0]-s.sizes[1])
	return total
}

func (s *state) scoreIfPlaced(i int, sd side) int {
	s.place(i, sd)
	sc := s.score()
	s.unplace(i)
	return sc
}

func (s *state) result(algorithm string) Result {
	res := Result{
		TeamA:     []Member{},
		TeamB:     []Member{},
		Algorithm: algorithm,
		Trace:     s.trace,
	}
	for _, i := range s.order {
		switch s.team[i] {
		case sideA:
			res.TeamA = append(res.TeamA, s.members[i])
		case sideB:
			res.TeamB = append(res.TeamB, s.members[i])
		}
	}
	return res
}

func (s *state) tracef(format string, args ...any) {
	if s.debug {
		s.trace = append(s.trace, fmt.Sprintf(format, args...))
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
