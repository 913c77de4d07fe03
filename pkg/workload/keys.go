// Package workload produces the lookup keys an execution unit runs through its
// prepared query. Keys are generated up front so random number generation never
// lands inside the timed region.
//
// Generators are seeded from the clock, the process id and a per-process counter.
// Two runs of the same configuration therefore see different key sequences; this
// is a known limitation and must not be "fixed" by pinning a seed, since that
// would change which pages each unit touches.
package workload

import (
	"fmt"
	"math/rand"
	"os"
	"sync/atomic"
	"time"
)

const (
	DistributionUniform = "uniform"
	DistributionZipfian = "zipfian"
	DistributionLatest  = "latest"
)

var seedCounter int64

// Distributions lists the supported key distributions.
func Distributions() []string {
	return []string{DistributionUniform, DistributionZipfian, DistributionLatest}
}

// ValidDistribution reports whether name is a supported distribution.
func ValidDistribution(name string) bool {
	for _, d := range Distributions() {
		if d == name {
			return true
		}
	}
	return false
}

// KeySource draws one key at a time.
type KeySource interface {
	Next(r *rand.Rand) int64
}

type uniform struct {
	xRange int64
}

func (u uniform) Next(r *rand.Rand) int64 {
	return r.Int63n(u.xRange)
}

// skewedLatest favours the top of the key range.
type skewedLatest struct {
	max     int64
	zipfian *Zipfian
}

func (s *skewedLatest) Next(r *rand.Rand) int64 {
	return s.max - s.zipfian.Next(r)
}

// NewKeySource returns a source of keys in [0, xRange).
func NewKeySource(dist string, xRange int64) (KeySource, error) {
	if xRange < 1 {
		return nil, fmt.Errorf("key range must be positive, got %d", xRange)
	}
	switch dist {
	case DistributionUniform, "":
		return uniform{xRange: xRange}, nil
	case DistributionZipfian:
		return NewZipfian(xRange, ZipfianConstant), nil
	case DistributionLatest:
		return &skewedLatest{max: xRange - 1, zipfian: NewZipfian(xRange, ZipfianConstant)}, nil
	default:
		return nil, fmt.Errorf("unknown key distribution %q", dist)
	}
}

// NewRand returns an unseeded (clock based) generator that is private to the caller.
func NewRand() *rand.Rand {
	n := atomic.AddInt64(&seedCounter, 1)
	seed := time.Now().UnixNano() ^ int64(os.Getpid())<<32 ^ n*0x9E3779B9
	return rand.New(rand.NewSource(seed))
}

// Keys returns n keys drawn independently from dist over [0, xRange).
func Keys(n int, xRange int64, dist string) ([]int64, error) {
	if n < 1 {
		return nil, fmt.Errorf("number of keys must be positive, got %d", n)
	}
	src, err := NewKeySource(dist, xRange)
	if err != nil {
		return nil, err
	}
	return Fill(make([]int64, n), src, NewRand()), nil
}

// Fill overwrites every element of keys with a draw from src.
func Fill(keys []int64, src KeySource, r *rand.Rand) []int64 {
	for i := range keys {
		keys[i] = src.Next(r)
	}
	return keys
}
