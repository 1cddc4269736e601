package sequence

import "math"

// Stats summarises the base composition of a sequence.
type Stats struct {
	Length    int              `json:"length" yaml:"length"`
	Counts    map[Base]int     `json:"counts" yaml:"counts"`
	Frequency map[Base]float64 `json:"frequency" yaml:"frequency"` // fractions over all symbols, unknowns included
	GCContent float64          `json:"gcContent" yaml:"gcContent"` // (G+C)/Length
	// Complexity is the Shannon entropy of overlapping known-base dinucleotides,
	// scaled from 0..4 bits to 0..10.
	Complexity float64 `json:"complexity" yaml:"complexity"`
}

// FrequencyOf returns the fraction of symbols equal to b.
func (s Stats) FrequencyOf(b Base) float64 { return s.Frequency[b] }

func computeStats(symbols []Base) Stats {
	st := Stats{
		Length:    len(symbols),
		Counts:    make(map[Base]int, 5),
		Frequency: make(map[Base]float64, 5),
	}
	for _, b := range Alphabet {
		st.Counts[b] = 0
	}
	var pairs [4][4]int
	totalPairs := 0
	for i, b := range symbols {
		st.Counts[b]++
		if i == 0 {
			continue
		}
		prev := symbols[i-1]
		if prev.Known() && b.Known() {
			pairs[prev.Index()][b.Index()]++
			totalPairs++
		}
	}
	n := float64(len(symbols))
	for b, c := range st.Counts {
		st.Frequency[b] = float64(c) / n
	}
	st.GCContent = float64(st.Counts[G]+st.Counts[C]) / n
	if totalPairs > 0 {
		var h float64
		for i := range pairs {
			for j := range pairs[i] {
				if pairs[i][j] == 0 {
					continue
				}
				p := float64(pairs[i][j]) / float64(totalPairs)
				h -= p * math.Log2(p)
			}
		}
		st.Complexity = math.Min(10, h/4*10)
	}
	return st
}
