package reward

import (
	"slices"

	"scrumgame/internal/domain"
)

var (
	GoldChallengeAnimals = []string{"TRICERATOPS", "PARASAUROLOPHUS"}
	BaseAssets           = []string{"ROCK_1"}
	StreakAssets         = []string{"FOUNTAIN", "CAVE_2"}
)

// NextUnlock returns the first item of order not yet in unlocked.
func NextUnlock(order, unlocked []string) (string, bool) {
	for _, item := range order {
		if !slices.Contains(unlocked, item) {
			return item, true
		}
	}
	return "", false
}

// Unlocks is what a finished sprint earns the project.
type Unlocks struct {
	GoldChallenge string
	Base          []string
	Streak        []string
}

// ForSprint derives the unlocks of a sprint from its stats and the project's
// current unlock sets.
func ForSprint(stats domain.SprintStats, project domain.Project) Unlocks {
	var u Unlocks
	if stats.SuccessState == domain.SuccessWithGoldChallenge {
		u.GoldChallenge, _ = NextUnlock(GoldChallengeAnimals, project.UnlockedAnimals)
	}
	if next, ok := NextUnlock(BaseAssets, project.UnlockedAssets); ok {
		u.Base = []string{next}
	}
	if stats.Streak >= 2 && stats.SuccessState.Successful() {
		if next, ok := NextUnlock(StreakAssets, project.UnlockedAssets); ok {
			u.Streak = []string{next}
		}
	}
	return u
}

// Merge adds the unlocks to the project's permanent sets without duplicates.
func (u Unlocks) Merge(p *domain.Project) {
	if u.GoldChallenge != "" && !slices.Contains(p.UnlockedAnimals, u.GoldChallenge) {
		p.UnlockedAnimals = append(p.UnlockedAnimals, u.GoldChallenge)
	}
	for _, a := range slices.Concat(u.Base, u.Streak) {
		if !slices.Contains(p.UnlockedAssets, a) {
			p.UnlockedAssets = append(p.UnlockedAssets, a)
		}
	}
}
