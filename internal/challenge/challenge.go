// Package challenge implements the Challenge Generator (C2): seeded,
// tiered production of match challenges. Word pools are grounded on
// original_source/apps/api/worldbuild_api/engine/challenge.py; the
// sampling itself uses math/rand seeded per-call rather than Python's
// random.Random, since no cross-language output compatibility is
// required, only same-process determinism for a given seed.
package challenge

import (
	"math/rand"

	"github.com/wbarena/arena/internal/core"
)

var biomesByTier = map[int][]string{
	1: {"salt flats", "kelp forest canopy", "terraced rice valleys", "glass desert", "chalk cliffs"},
	2: {"drowned cathedral district", "migrating ice archipelago", "fungal understory", "tidal stone labyrinth", "sky-root canyon"},
	3: {"inverted gravity well", "recursive mirror steppe", "dreaming magma sea", "folded paper continent", "silent hour marshlands"},
}

var inhabitantsPool = []string{
	"glassblowers", "bone-carver clans", "migratory beekeepers", "lighthouse monks",
	"cartographer guilds", "weather-singers", "salvage divers", "loom weavers",
	"echo shepherds", "grief archivists",
}

var twistsByTier = map[int][]string{
	1: {"no metal may be forged", "names are currency", "the tide reverses once a season", "children choose their own elders"},
	2: {"memory can be traded but not kept", "every structure must be load-bearing for migration", "light is rationed by the season"},
	3: {"time moves backward for one caste", "the dead vote", "gravity follows belief, not mass"},
}

// Generate derives a deterministic challenge from (seed, tier).
func Generate(seed int64, tier int) core.Challenge {
	rng := rand.New(rand.NewSource(seed))

	biomes := biomesByTier[tier]
	if len(biomes) == 0 {
		biomes = biomesByTier[1]
	}
	twists := twistsByTier[tier]
	if len(twists) == 0 {
		twists = twistsByTier[1]
	}

	return core.Challenge{
		Seed:            seed,
		Tier:            tier,
		BiomeSetting:    pick(rng, biomes),
		Inhabitants:     pick(rng, inhabitantsPool),
		TwistConstraint: pick(rng, twists),
	}
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}
