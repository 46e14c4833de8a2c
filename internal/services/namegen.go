package services

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/tyler-smith/go-bip39/wordlists"
)

// wordlist is the BIP39 English wordlist (2048 words).
// Two words plus a number gives 2048 × 2048 × 100 = 419 million combinations,
// which is plenty for display names that carry no uniqueness requirement.
var wordlist = wordlists.English

// NameService generates human-readable display names for guests who join
// without picking one themselves.
type NameService struct {
	rng *rand.Rand
}

// NewNameService creates a NameService with its own random source.
func NewNameService() *NameService {
	return &NameService{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Generate creates a random identity name without uniqueness checking.
// Returns a PascalCase name like "HappyTiger42".
func (s *NameService) Generate() string {
	word1 := wordlist[s.rng.Intn(len(wordlist))]
	word2 := wordlist[s.rng.Intn(len(wordlist))]
	num := s.rng.Intn(100)
	return fmt.Sprintf("%s%s%d", capitalize(word1), capitalize(word2), num)
}

// capitalize returns the string with its first letter uppercased.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
