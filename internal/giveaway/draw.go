package giveaway

import "math/rand"

// drawWinners picks up to n distinct winners from participants.
//
// Each participant's weight in the pool is max(1, 1+bonus): bonus chances
// multiply win probability, but the base entry can never drop below one
// regardless of a zero or negative bonus. After each draw every copy of
// the drawn ID is removed, so a winner cannot repeat and the remaining
// participants keep their relative weights.
//
// When everyone fits the requested count there is nothing to draw and all
// participants win.
func drawWinners(participants []string, bonus func(string) int, n int, rnd *rand.Rand) []string {
	if len(participants) == 0 {
		return nil
	}
	if len(participants) <= n {
		return append([]string(nil), participants...)
	}

	pool := make([]string, 0, len(participants))
	for _, p := range participants {
		weight := 1 + bonus(p)
		if weight < 1 {
			weight = 1
		}
		for i := 0; i < weight; i++ {
			pool = append(pool, p)
		}
	}

	winners := make([]string, 0, n)
	for len(winners) < n && len(pool) > 0 {
		drawn := pool[rnd.Intn(len(pool))]
		winners = append(winners, drawn)

		remaining := pool[:0]
		for _, p := range pool {
			if p != drawn {
				remaining = append(remaining, p)
			}
		}
		pool = remaining
	}
	return winners
}
