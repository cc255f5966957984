// Package matrixcache implements the Distance-Matrix Cache (C2): it
// memoizes C1's distance/time matrices keyed by a canonicalized,
// order-invariant hash of the location set, on top of the generic
// pkg/cache.Cache interface.
package matrixcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
	"dispatch/pkg/cache"
)

// DefaultTTL is the default matrix cache entry lifetime.
const DefaultTTL = 24 * time.Hour

// Cache memoizes geo.MatrixResult values keyed by location set.
type Cache struct {
	backend cache.Cache
	ttl     time.Duration
}

// New wraps an existing cache.Cache backend (memory or Redis) as a
// Distance-Matrix Cache with the given TTL (0 uses DefaultTTL).
func New(backend cache.Cache, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{backend: backend, ttl: ttl}
}

// LocationSetHash computes a deterministic, order-invariant key for a set
// of coordinates: the set is sorted into canonical order before hashing, so
// two requests over the same locations in different order hash identically.
func LocationSetHash(locations []domain.Coordinate) string {
	sorted := make([]domain.Coordinate, len(locations))
	copy(sorted, locations)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Lat != sorted[j].Lat {
			return sorted[i].Lat < sorted[j].Lat
		}
		return sorted[i].Lon < sorted[j].Lon
	})

	var buf []byte
	for _, c := range sorted {
		buf = append(buf, []byte(fmt.Sprintf("%.6f,%.6f;", c.Lat, c.Lon))...)
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:16])
}

func buildKey(locations []domain.Coordinate, vehicleKind geo.VehicleKind) string {
	return "matrix:" + string(vehicleKind) + ":" + LocationSetHash(locations)
}

// cachedMatrix is the JSON-serializable form of a geo.MatrixResult.
type cachedMatrix struct {
	D        [][]float64 `json:"d"`
	T        [][]float64 `json:"t"`
	TTraffic [][]float64 `json:"t_traffic,omitempty"`
	Degraded bool        `json:"degraded"`
	Order    []string    `json:"order"` // canonical lat,lon order the matrix rows/cols were built in
}

// Get returns a cached matrix for the given location set, remapped to the
// caller's requested order, or (nil, false) on a miss.
func (c *Cache) Get(ctx context.Context, locations []domain.Coordinate, vehicleKind geo.VehicleKind) (*geo.MatrixResult, bool) {
	key := buildKey(locations, vehicleKind)
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, false
	}

	var cm cachedMatrix
	if err := json.Unmarshal(data, &cm); err != nil {
		_ = c.backend.Delete(ctx, key)
		return nil, false
	}

	reordered, ok := remap(cm, locations)
	if !ok {
		return nil, false
	}
	return reordered, true
}

// Set stores a matrix computed over locations (in the order used to build
// it), keyed by the canonicalized location set.
func (c *Cache) Set(ctx context.Context, locations []domain.Coordinate, vehicleKind geo.VehicleKind, result *geo.MatrixResult) error {
	order := make([]string, len(locations))
	for i, loc := range locations {
		order[i] = strconv.FormatFloat(loc.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(loc.Lon, 'f', 6, 64)
	}

	cm := cachedMatrix{
		D:        result.D,
		T:        result.T,
		TTraffic: result.TTraffic,
		Degraded: result.Degraded,
		Order:    order,
	}
	data, err := json.Marshal(cm)
	if err != nil {
		return err
	}

	key := buildKey(locations, vehicleKind)
	return c.backend.Set(ctx, key, data, c.ttl)
}

// remap reorders a cached matrix (built over cm.Order) to match the
// caller's requested locations slice, so repeated lookups with a
// differently-ordered but set-equal location list still hit.
func remap(cm cachedMatrix, want []domain.Coordinate) (*geo.MatrixResult, bool) {
	index := make(map[string]int, len(cm.Order))
	for i, k := range cm.Order {
		index[k] = i
	}

	perm := make([]int, len(want))
	for i, c := range want {
		key := strconv.FormatFloat(c.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lon, 'f', 6, 64)
		idx, ok := index[key]
		if !ok {
			return nil, false
		}
		perm[i] = idx
	}

	n := len(want)
	d := make([][]float64, n)
	tt := make([][]float64, n)
	var ttraffic [][]float64
	if cm.TTraffic != nil {
		ttraffic = make([][]float64, n)
	}
	for i := 0; i < n; i++ {
		d[i] = make([]float64, n)
		tt[i] = make([]float64, n)
		if ttraffic != nil {
			ttraffic[i] = make([]float64, n)
		}
		for j := 0; j < n; j++ {
			d[i][j] = cm.D[perm[i]][perm[j]]
			tt[i][j] = cm.T[perm[i]][perm[j]]
			if ttraffic != nil {
				ttraffic[i][j] = cm.TTraffic[perm[i]][perm[j]]
			}
		}
	}

	return &geo.MatrixResult{D: d, T: tt, TTraffic: ttraffic, Degraded: cm.Degraded}, true
}

// Invalidate removes every cached matrix (used by tests and ops tooling).
func (c *Cache) Invalidate(ctx context.Context) (int64, error) {
	return c.backend.DeleteByPattern(ctx, "matrix:*")
}
