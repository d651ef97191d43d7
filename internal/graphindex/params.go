package graphindex

import "math"

// Params configures the proximity graph's shape and search cost: M
// and EfSearch plus EfConstruction and a level generation factor true
// multi-level HNSW needs to expose.
type Params struct {
	// M is the max neighbors kept per node per level above level 0
	// (level 0 keeps up to 2*M, the standard HNSW asymmetry that gives
	// the base layer denser connectivity).
	M int
	// EfConstruction is the candidate list size used while inserting.
	EfConstruction int
	// EfSearch is the default candidate list size used while
	// searching, when the caller doesn't override it.
	EfSearch int
	// LevelFactor (Ml) controls how quickly nodes are promoted to
	// higher levels; smaller means fewer nodes reach high levels.
	LevelFactor float64
	// Metric selects the distance function: "cosine" (default) or
	// "euclidean".
	Metric string
}

// DefaultParams uses conventional HNSW defaults (M=16, EfSearch=20)
// with Ml set to 1/ln(M), which works out to about 0.36 for M=16.
func DefaultParams() Params {
	m := 16
	return Params{
		M:              m,
		EfConstruction: 200,
		EfSearch:       20,
		LevelFactor:    1.0 / math.Log(float64(m)),
		Metric:         "cosine",
	}
}

func (p Params) maxNeighbors(level int) int {
	if level == 0 {
		return p.M * 2
	}
	return p.M
}
