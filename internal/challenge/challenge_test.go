package challenge

import "testing"

func TestGenerateIsDeterministic(t *testing.T) {
	a := Generate(42, 1)
	b := Generate(42, 1)
	if a != b {
		t.Errorf("same seed produced different challenges: %+v vs %+v", a, b)
	}
}

func TestGenerateVariesBySeed(t *testing.T) {
	a := Generate(1, 1)
	b := Generate(2, 1)
	if a == b {
		t.Error("different seeds produced identical challenges")
	}
}

func TestGenerateRespectsTier(t *testing.T) {
	c := Generate(42, 3)
	if c.Tier != 3 {
		t.Errorf("tier not recorded: %d", c.Tier)
	}
	found := false
	for _, b := range biomesByTier[3] {
		if b == c.BiomeSetting {
			found = true
		}
	}
	if !found {
		t.Errorf("biome %q not drawn from tier-3 pool", c.BiomeSetting)
	}
}
