// Package reward sizes currency rewards and walks the fixed unlock orders.
package reward

import (
	"cmp"
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"slices"
	"sync"

	"scrumgame/internal/domain"
)

const (
	levelUpBase     = 100
	levelUpPerLevel = 10
	levelUpRandom   = 10

	GoldMedalCurrency   = 100
	SilverMedalCurrency = 75
	BronzeMedalCurrency = 50

	// XPPerLevel is the experience needed for each level step.
	XPPerLevel = 100
)

// NewSeed returns a non-deterministic seed from crypto/rand.
func NewSeed() (uint64, error) {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// NewSource returns a PCG source seeded from crypto/rand.
func NewSource() (rand.Source, error) {
	hi, err := NewSeed()
	if err != nil {
		return nil, err
	}
	lo, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return rand.NewPCG(hi, lo), nil
}

// Calculator owns the random source shared by currency sizing, standup order
// and medal tie-breaking. It is safe for concurrent use.
type Calculator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func New(src rand.Source) *Calculator {
	return &Calculator{rng: rand.New(src)}
}

// NewSeeded returns a reproducible calculator.
func NewSeeded(seed uint64) *Calculator {
	return New(rand.NewPCG(seed, seed))
}

// LevelUpCurrency is 100 + (newLevel-1)*10 plus a uniform bonus in [0, 10).
func (c *Calculator) LevelUpCurrency(newLevel int) int {
	c.mu.Lock()
	bonus := c.rng.IntN(levelUpRandom)
	c.mu.Unlock()
	return levelUpBase + (newLevel-1)*levelUpPerLevel + bonus
}

// Permutation returns a shuffled copy of ids.
func (c *Calculator) Permutation(ids []string) []string {
	out := slices.Clone(ids)
	c.mu.Lock()
	c.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	c.mu.Unlock()
	return out
}

// RankMedals orders users by completed story points, highest first, and
// returns at most three medals. Ties are broken by a shuffle before the
// stable sort.
func (c *Calculator) RankMedals(users []domain.UserSprintStats) []domain.Medal {
	ranked := slices.Clone(users)
	c.mu.Lock()
	c.rng.Shuffle(len(ranked), func(i, j int) { ranked[i], ranked[j] = ranked[j], ranked[i] })
	c.mu.Unlock()
	slices.SortStableFunc(ranked, func(a, b domain.UserSprintStats) int {
		return cmp.Compare(b.StoryPointsCompleted, a.StoryPointsCompleted)
	})
	var medals []domain.Medal
	for _, u := range ranked {
		if len(medals) == 3 {
			break
		}
		medals = append(medals, domain.Medal{UserID: u.UserID, Points: u.StoryPointsCompleted})
	}
	return medals
}

// LevelForXP maps accumulated experience to a level starting at 1.
func LevelForXP(xp int) int {
	if xp < 0 {
		return 1
	}
	return 1 + xp/XPPerLevel
}
