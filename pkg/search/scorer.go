package search

import (
	"time"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/bow"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/observability"
)

// ScorerConfig holds the parameters of a Scorer
type ScorerConfig struct {
	Norm          bow.NormType
	CacheCapacity int           // 0 disables the cache
	CacheTTL      time.Duration // 0 = entries never expire
	Metrics       *observability.Metrics
}

// Scorer scores queries against a database through an optional LRU cache
type Scorer struct {
	db      *bow.Database
	norm    bow.NormType
	cache   *LRUCache[[]bow.Score]
	metrics *observability.Metrics
}

// Match is a ranked query result
type Match struct {
	Ranked   []bow.Score
	Landmark int
	Votes    int
	Cached   bool
}

// NewScorer creates a scorer over db
func NewScorer(db *bow.Database, cfg ScorerConfig) *Scorer {
	s := &Scorer{
		db:      db,
		norm:    cfg.Norm,
		metrics: cfg.Metrics,
	}
	if cfg.CacheCapacity > 0 {
		s.cache = NewLRUCache[[]bow.Score](cfg.CacheCapacity, cfg.CacheTTL)
	}
	return s
}

// Database returns the scored database
func (s *Scorer) Database() *bow.Database {
	return s.db
}

// Norm returns the norm used for scoring
func (s *Scorer) Norm() bow.NormType {
	return s.norm
}

// Score returns the scores of query ordered by image id. The bool reports
// whether the result came from the cache.
func (s *Scorer) Score(query descriptor.Matrix) ([]bow.Score, bool, error) {
	if s.cache == nil {
		scores, err := s.db.ScoreQuery(query, s.norm)
		return scores, false, err
	}

	key := QueryKey(query, s.norm, s.db.Version())
	if scores, ok := s.cache.Get(key); ok {
		if s.metrics != nil {
			s.metrics.RecordCacheHit()
		}
		return append([]bow.Score(nil), scores...), true, nil
	}
	if s.metrics != nil {
		s.metrics.RecordCacheMiss()
	}

	scores, err := s.db.ScoreQuery(query, s.norm)
	if err != nil {
		return nil, false, err
	}

	s.cache.Put(key, append([]bow.Score(nil), scores...))
	if s.metrics != nil {
		s.metrics.UpdateCacheSize(s.cache.Size())
	}
	return scores, false, nil
}

// Match scores query, ranks the result and keeps the top entries. When
// landmarks is non-nil the top entries also vote for a landmark.
func (s *Scorer) Match(query descriptor.Matrix, top int, landmarks map[int]int) (*Match, error) {
	scores, cached, err := s.Score(query)
	if err != nil {
		return nil, err
	}

	ranked := TopN(Rank(scores), top)
	m := &Match{Ranked: ranked, Landmark: -1, Cached: cached}
	if landmarks != nil {
		m.Landmark, m.Votes = Vote(ranked, landmarks, top)
	}
	return m, nil
}

// CacheStats returns the cache statistics, zero when caching is disabled
func (s *Scorer) CacheStats() CacheStats {
	if s.cache == nil {
		return CacheStats{}
	}
	return s.cache.Stats()
}

// InvalidateCache drops every cached result
func (s *Scorer) InvalidateCache() {
	if s.cache != nil {
		s.cache.Clear()
		if s.metrics != nil {
			s.metrics.UpdateCacheSize(0)
		}
	}
}
