// Package prompt picks the phrase a user reads aloud and checks the digits
// a transcription contains against it.
package prompt

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"slices"
	"strings"
)

var digitRun = regexp.MustCompile(`\d+`)

// Phrases are the templates prompts are drawn from. Each %s is replaced by a
// random run of digits.
var Phrases = []string{
	"My verification code is %s.",
	"Please confirm the number %s.",
	"I am reading the digits %s out loud.",
	"The code on my screen says %s.",
	"Today my lucky number is %s.",
}

// Random returns a prompt with a freshly generated digit sequence.
// A nil r uses the package level source.
func Random(r *rand.Rand) string {
	intN := rand.IntN
	if r != nil {
		intN = r.IntN
	}

	phrase := Phrases[intN(len(Phrases))]

	digits := make([]string, 4+intN(3))
	for i := range digits {
		digits[i] = fmt.Sprint(intN(10))
	}

	return fmt.Sprintf(phrase, strings.Join(digits, " "))
}

// Numbers returns every run of digits in text, in order.
func Numbers(text string) []string {
	found := digitRun.FindAllString(text, -1)
	if found == nil {
		return []string{}
	}
	return found
}

// Match reports whether the transcription contains exactly the digit runs of
// the expected prompt, in the same order.
func Match(expected, transcription string) bool {
	return slices.Equal(Numbers(expected), Numbers(transcription))
}
