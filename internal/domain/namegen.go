package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
)

const (
	// AnimalAttempts is how many adjective-animal names are tried before
	// falling back to random tokens.
	AnimalAttempts = 20
	// SixCharAttempts bounds the random token fallback.
	SixCharAttempts = 20

	sixCharAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// ExistsFunc reports whether a session name is already in use.
type ExistsFunc func(name string) (bool, error)

// NameGenerator picks session names. It never touches a store: callers pass
// the existence check in.
type NameGenerator struct {
	// Rand is the randomness source. Nil means the global generator.
	Rand *rand.Rand
}

// Generate returns desired when it is free, otherwise the first free
// generated candidate. It gives up with ErrNameExhausted after a bounded
// number of attempts.
func (g NameGenerator) Generate(desired string, exists ExistsFunc) (string, error) {
	if desired != "" {
		taken, err := exists(desired)
		if err != nil {
			return "", fmt.Errorf("check name %q: %w", desired, err)
		}
		if !taken {
			return desired, nil
		}
	}

	for i := 0; i < AnimalAttempts; i++ {
		name := g.Animal()
		taken, err := exists(name)
		if err != nil {
			return "", fmt.Errorf("check name %q: %w", name, err)
		}
		if !taken {
			return name, nil
		}
	}

	for i := 0; i < SixCharAttempts; i++ {
		name := g.SixChar()
		taken, err := exists(name)
		if err != nil {
			return "", fmt.Errorf("check name %q: %w", name, err)
		}
		if !taken {
			return name, nil
		}
	}

	return "", ErrNameExhausted
}

// Animal returns a random "adjective-animal" name.
func (g NameGenerator) Animal() string {
	return shortAdjectives[g.intn(len(shortAdjectives))] + "-" + animals[g.intn(len(animals))]
}

// SixChar returns a random six character lowercase alphanumeric token.
func (g NameGenerator) SixChar() string {
	var b strings.Builder
	b.Grow(6)
	for i := 0; i < 6; i++ {
		b.WriteByte(sixCharAlphabet[g.intn(len(sixCharAlphabet))])
	}
	return b.String()
}

func (g NameGenerator) intn(n int) int {
	if g.Rand != nil {
		return g.Rand.IntN(n)
	}
	return rand.IntN(n)
}

// PreviewName derives a six character name from the routing content of doc.
// The same services, domains and cache routes always give the same name.
func PreviewName(doc Document) string {
	content := struct {
		Services    []ServiceSpec     `json:"services"`
		Domains     []DomainSpec      `json:"domains"`
		CacheRoutes []json.RawMessage `json:"cache_routes,omitempty"`
	}{doc.Services, doc.Domains, doc.CacheRoutes}

	// Marshalling plain structs of strings cannot fail.
	data, _ := json.Marshal(content)
	sum := sha256.Sum256(data)
	n := binary.BigEndian.Uint64(sum[:8])

	out := make([]byte, 6)
	for i := range out {
		out[i] = sixCharAlphabet[n%uint64(len(sixCharAlphabet))]
		n /= uint64(len(sixCharAlphabet))
	}
	return string(out)
}

var animals = [...]string{
	"ant", "bat", "bison", "camel", "cat", "cow", "crab", "deer", "dog", "duck", "eagle", "fish",
	"fox", "frog", "gecko", "goat", "goose", "hare", "horse", "koala", "lion", "lynx", "mole",
	"mouse", "otter", "panda", "pig", "prawn", "puma", "quail", "sheep", "sloth", "snake", "swan",
	"tiger", "wolf", "zebra",
}

var shortAdjectives = [...]string{
	"able", "acid", "adept", "aged", "airy", "ajar", "awry", "back", "bare", "beefy", "big",
	"blond", "blue", "bold", "bossy", "brave", "brief", "broad", "busy", "calm", "cheap", "chill",
	"clean", "coy", "crazy", "curvy", "cute", "damp", "dear", "deep", "dizzy", "dopey", "drunk",
	"dry", "dull", "dusty", "easy", "edgy", "fiery", "fancy", "fat", "few", "fine", "flat", "foxy",
	"fresh", "frisky", "full", "fun", "glad", "grand", "great", "green", "happy", "hard", "hazy",
	"icy", "jolly", "jumpy", "kind", "lame", "late", "leafy", "light", "loyal", "lucky", "mad",
	"mean", "neat", "new", "nice", "noble", "odd", "old", "perky", "proud", "quick", "quiet",
	"rare", "red", "ripe", "rotten", "safe", "salty", "sandy", "scary", "shaky", "sharp", "short",
	"shy", "silly", "sleek", "slim", "slow", "small", "smart", "smug", "snappy", "soggy", "sour",
	"spicy", "stale", "stark", "steep", "sticky", "stout", "super", "sweet", "sunny", "tall",
	"tame", "tart", "tasty", "tepid", "tiny", "tipsy", "tough", "true", "vague", "vivid", "warm",
	"weak", "wild", "wise", "wooden", "witty", "zesty",
}
