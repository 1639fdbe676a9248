package discovery

import (
	"math"
	"time"
)

// Scoring weights.
const (
	baseScore          = 10.0
	recencyMax         = 5.0
	recencyPerDay      = 0.1
	sweetSpotBonus     = 3.0
	longPayloadBonus   = 1.0
	repeatNameBonus    = 1.0
	repeatNameBonusCap = 2.0
)

// Score computes the priority of a qualifying meeting. Newer meetings,
// payloads inside the sweet spot, and titles repeating the name rank higher.
func (e *Engine) Score(created, now time.Time, payloadSize, nameOccurrences int) float64 {
	score := baseScore

	days := now.Sub(created).Hours() / 24
	if days < 0 {
		days = 0
	}
	score += math.Max(0, recencyMax-days*recencyPerDay)

	switch {
	case payloadSize >= e.opts.SweetSpotMin && payloadSize <= e.opts.SweetSpotMax:
		score += sweetSpotBonus
	case payloadSize > e.opts.SweetSpotMax:
		score += longPayloadBonus
	}

	if extra := nameOccurrences - 1; extra > 0 {
		score += math.Min(repeatNameBonusCap, repeatNameBonus*float64(extra))
	}
	return score
}
