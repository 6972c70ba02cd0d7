package voting

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/teacurran/planning-poker/internal/protocol"
)

// consensusVarianceCeiling is the population-variance threshold under which
// a round of differing numeric votes still counts as consensus. Tuned for
// fibonacci decks: adjacent low cards agree, adjacent high cards do not.
const consensusVarianceCeiling = 2.0

// ComputeStats derives the reveal statistics from the cast card values.
//
// Average is the mean of the numeric votes, half-up to two decimals, or nil
// without numeric votes. Median is the statistical median when every vote is
// numeric; for mixed or non-numeric rounds it degrades to the majority card
// (frequency > half the votes) or the literal "mixed". Consensus requires
// all-numeric votes with population variance strictly below the ceiling.
func ComputeStats(values []string) protocol.RoundStats {
	var stats protocol.RoundStats
	if len(values) == 0 {
		return stats
	}

	var numeric []float64
	for _, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			numeric = append(numeric, f)
		}
	}

	if len(numeric) > 0 {
		avg := roundHalfUp(mean(numeric), 2)
		stats.Avg = &avg
	}

	if len(numeric) == len(values) {
		m := median(numeric)
		s := formatMedian(m)
		stats.Median = &s
		stats.Consensus = populationVariance(numeric) < consensusVarianceCeiling
	} else {
		s := majorityCard(values)
		stats.Median = &s
		stats.Consensus = false
	}

	return stats
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func populationVariance(xs []float64) float64 {
	mu := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return sum / float64(len(xs))
}

// majorityCard returns the most common card when it holds a strict majority,
// otherwise "mixed".
func majorityCard(values []string) string {
	counts := make(map[string]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	for v, n := range counts {
		if float64(n) > float64(len(values))/2 {
			return v
		}
	}
	return "mixed"
}

// formatMedian renders a median as an integer when whole, else one decimal.
func formatMedian(m float64) string {
	if m == math.Trunc(m) {
		return strconv.FormatInt(int64(m), 10)
	}
	return fmt.Sprintf("%.1f", roundHalfUp(m, 1))
}

// roundHalfUp rounds to the given decimal places, halves away from zero on
// the positive axis (card values are non-negative).
func roundHalfUp(x float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Floor(x*shift+0.5) / shift
}
