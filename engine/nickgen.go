package engine

import "math/rand"

// autoWords is the fixed 9-element word list spec.md §6 names for the
// "auto" nickname sentinel: a generated nickname is "<word1><word2>",
// two distinct entries picked at random.
var autoWords = [9]string{
	"able", "blue", "calm", "dusk", "echo",
	"fox", "gray", "hawk", "iris",
}

// GenerateNickname builds a random "<word1><word2>" nickname from
// autoWords when configuredNick is literally "auto", per spec.md §6.
// Otherwise it returns configuredNick unchanged.
func GenerateNickname(configuredNick string) string {
	if configuredNick != "auto" {
		return configuredNick
	}
	i := rand.Intn(len(autoWords))
	j := rand.Intn(len(autoWords))
	for j == i {
		j = rand.Intn(len(autoWords))
	}
	return autoWords[i] + autoWords[j]
}
