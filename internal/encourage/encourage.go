// Package encourage picks a short message that acknowledges choosing the
// cooler route.
package encourage

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Bucket groups messages by how good the trade-off was.
type Bucket string

// Buckets in order of precedence.
const (
	LowDistance   Bucket = "low_distance"
	HighComfort   Bucket = "high_comfort"
	MediumComfort Bucket = "medium_comfort"
	Environmental Bucket = "environmental"
)

// Message is an encouragement shown after a route choice.
type Message struct {
	Text   string `json:"text"`
	Bucket Bucket `json:"bucket"`
	// Comfort and Distance summarize the trade-off, e.g. "+18.0% comfort".
	// Distance is empty when the cool route is not longer.
	Comfort  string `json:"comfort"`
	Distance string `json:"distance,omitempty"`
}

var messages = map[Bucket][]string{
	HighComfort: {
		"Excellent choice! This route will keep you much cooler.",
		"Great decision! Your body will thank you on this shaded path.",
		"Smart pick! More trees mean a more comfortable journey.",
	},
	MediumComfort: {
		"Good choice! A bit more distance for better comfort.",
		"Nice! Trading a few extra meters for shade is worth it.",
	},
	LowDistance: {
		"Perfect balance of comfort and efficiency!",
		"Best of both worlds, cool and quick!",
	},
	Environmental: {
		"Choosing green routes helps preserve urban forests!",
		"Every shaded route choice supports sustainable cities.",
	},
}

// Messages returns the texts of a bucket.
func Messages(b Bucket) []string {
	return append([]string(nil), messages[b]...)
}

// Classify returns the bucket for a comfort improvement and a distance
// penalty, both in percent.
func Classify(comfortImprovement, distancePenalty float64) Bucket {
	switch {
	case comfortImprovement > 15 && distancePenalty < 20:
		return LowDistance
	case comfortImprovement > 10:
		return HighComfort
	case comfortImprovement > 5:
		return MediumComfort
	default:
		return Environmental
	}
}

// Selector picks messages at random within a bucket. It is safe for
// concurrent use.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector returns a Selector drawing from rng, or from a time-seeded
// source when rng is nil.
func NewSelector(rng *rand.Rand) *Selector {
	if rng == nil {
		seed := uint64(time.Now().UnixNano()) //nolint:gosec // not security sensitive
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Selector{rng: rng}
}

// Select returns a message for a route choice. Only choosing the cool
// route earns one.
func (s *Selector) Select(comfortImprovement, distancePenalty float64, coolRouteSelected bool) (Message, bool) {
	if !coolRouteSelected {
		return Message{}, false
	}

	bucket := Classify(comfortImprovement, distancePenalty)
	texts := messages[bucket]

	s.mu.Lock()
	i := s.rng.IntN(len(texts))
	s.mu.Unlock()

	msg := Message{
		Text:    texts[i],
		Bucket:  bucket,
		Comfort: fmt.Sprintf("+%.1f%% comfort", comfortImprovement),
	}
	if distancePenalty > 0 {
		msg.Distance = fmt.Sprintf("+%.1f%% distance", distancePenalty)
	}
	return msg, true
}
