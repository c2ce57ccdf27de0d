package main

import (
	"crypto/rand"
	"math/big"

	"github.com/dustin/go-humanize/english"
)

// Role is a secret role handed out at START
type Role string

const (
	RoleNone     Role = ""
	RoleVillager Role = "villager"
	RoleWerewolf Role = "werewolf"
	RoleSeer     Role = "seer"
	RoleWitch    Role = "witch"
	RoleHunter   Role = "hunter"
)

// roleOrder is the order used for summaries
var roleOrder = []Role{RoleWerewolf, RoleSeer, RoleWitch, RoleHunter, RoleVillager}

var rolePlurals = map[Role]string{
	RoleWerewolf: "werewolves",
	RoleSeer:     "seers",
	RoleWitch:    "witches",
	RoleHunter:   "hunters",
	RoleVillager: "villagers",
}

// Team names used by the win evaluator and the ledger visibility rules
const (
	TeamWerewolf = "werewolf"
	TeamVillager = "villager"
)

func (r Role) Team() string {
	if r == RoleWerewolf {
		return TeamWerewolf
	}
	return TeamVillager
}

// werewolfCount returns how many werewolves a game of n players gets
func werewolfCount(n int) int {
	switch {
	case n <= 6:
		return 1
	case n <= 9:
		return 2
	case n <= 12:
		return 3
	case n <= 15:
		return 4
	default:
		return max(4, n/4)
	}
}

// roleCounts is the deterministic distribution for n players, before shuffling
func roleCounts(n int) map[Role]int {
	counts := map[Role]int{RoleWerewolf: werewolfCount(n)}
	if n >= 5 {
		counts[RoleSeer] = 1
	}
	if n >= 6 {
		counts[RoleWitch] = 1
	}
	if n >= 7 {
		counts[RoleHunter] = 1
	}
	used := 0
	for _, c := range counts {
		used += c
	}
	if n > used {
		counts[RoleVillager] = n - used
	}
	return counts
}

// buildRoleDeck expands roleCounts into a shuffled slice of exactly n roles
func buildRoleDeck(n int) []Role {
	counts := roleCounts(n)
	deck := make([]Role, 0, n)
	for _, r := range roleOrder {
		for i := 0; i < counts[r]; i++ {
			deck = append(deck, r)
		}
	}
	shuffleRoles(deck)
	return deck
}

// shuffleRoles shuffles the deck using crypto/rand
func shuffleRoles(roles []Role) {
	for i := len(roles) - 1; i > 0; i-- {
		jBig, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			// Fallback: just swap with previous element
			roles[i], roles[i-1] = roles[i-1], roles[i]
			continue
		}
		j := int(jBig.Int64())
		roles[i], roles[j] = roles[j], roles[i]
	}
}

// distributionSummary renders counts as "1 werewolf, 1 seer and 3 villagers"
func distributionSummary(counts map[Role]int) string {
	var parts []string
	for _, r := range roleOrder {
		if c := counts[r]; c > 0 {
			parts = append(parts, english.Plural(c, string(r), rolePlurals[r]))
		}
	}
	return english.WordSeries(parts, "and")
}
