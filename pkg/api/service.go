// Package api holds the query service shared by the REST and gRPC
// front ends and the JSON messages they exchange.
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/bow"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/observability"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/search"
)

// Version is reported by health checks
const Version = "1.0.0"

// DefaultTop is the number of ranked images returned when a request does
// not set top
const DefaultTop = 10

var (
	// ErrInvalidRequest is returned for a request that cannot describe a
	// descriptor matrix
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnavailable is returned when the database cannot answer queries
	ErrUnavailable = errors.New("database unavailable")
)

// ScoreRequest carries a query descriptor matrix. Data is row-major; binary
// values must be bytes.
type ScoreRequest struct {
	Kind string    `json:"kind"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
	Top  int       `json:"top,omitempty"`
}

// ScoreEntry is one ranked image
type ScoreEntry struct {
	ImageID  int     `json:"image_id"`
	Distance float64 `json:"distance"`
}

// ScoreResponse holds the best ranked images of a query
type ScoreResponse struct {
	Scores  []ScoreEntry `json:"scores"`
	Images  int          `json:"images"`
	Cached  bool         `json:"cached"`
	Version uint64       `json:"version"`
}

// StatsResponse describes the database and the score cache
type StatsResponse struct {
	Database      bow.Stats         `json:"database"`
	Cache         search.CacheStats `json:"cache"`
	UptimeSeconds float64           `json:"uptime_seconds"`
}

// HealthResponse reports service liveness
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Backend answers queries. Service implements it locally and the gRPC
// client remotely.
type Backend interface {
	Score(ctx context.Context, req *ScoreRequest) (*ScoreResponse, error)
	Stats(ctx context.Context) (*StatsResponse, error)
	Health(ctx context.Context) (*HealthResponse, error)
}

// NewScoreRequest encodes m as a request
func NewScoreRequest(m descriptor.Matrix, top int) (*ScoreRequest, error) {
	req := &ScoreRequest{
		Kind: m.Kind().String(),
		Rows: m.Rows(),
		Cols: m.Cols(),
		Data: make([]float64, 0, m.Rows()*m.Cols()),
		Top:  top,
	}

	switch data := m.(type) {
	case descriptor.Dataset[byte]:
		for i := 0; i < m.Rows(); i++ {
			for _, v := range data.Row(i) {
				req.Data = append(req.Data, float64(v))
			}
		}
	case descriptor.Dataset[float64]:
		for i := 0; i < m.Rows(); i++ {
			req.Data = append(req.Data, data.Row(i)...)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported matrix %T", ErrInvalidRequest, m)
	}
	return req, nil
}

// Matrix decodes the request descriptors
func (r *ScoreRequest) Matrix() (descriptor.Matrix, error) {
	kind, err := descriptor.ParseKind(r.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := descriptor.CheckShape(r.Rows, r.Cols); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if len(r.Data) != r.Rows*r.Cols {
		return nil, fmt.Errorf("%w: %d values for shape %dx%d", ErrInvalidRequest, len(r.Data), r.Rows, r.Cols)
	}

	if kind == descriptor.BinaryKind {
		data := make([]byte, len(r.Data))
		for i, v := range r.Data {
			if v < 0 || v > 255 || v != float64(byte(v)) {
				return nil, fmt.Errorf("%w: binary value %v at %d is not a byte", ErrInvalidRequest, v, i)
			}
			data[i] = byte(v)
		}
		m, err := descriptor.NewBinary(r.Rows, r.Cols, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return m, nil
	}

	m, err := descriptor.NewReal(r.Rows, r.Cols, append([]float64(nil), r.Data...))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return m, nil
}

// Service answers queries against a local database
type Service struct {
	scorer    *search.Scorer
	logger    *observability.Logger
	startTime time.Time
}

// NewService creates a service over scorer. A nil logger discards output.
func NewService(scorer *search.Scorer, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Service{
		scorer:    scorer,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Scorer returns the underlying scorer
func (s *Service) Scorer() *search.Scorer {
	return s.scorer
}

// Score ranks the database images against the request descriptors
func (s *Service) Score(ctx context.Context, req *ScoreRequest) (*ScoreResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}

	query, err := req.Matrix()
	if err != nil {
		return nil, err
	}

	top := req.Top
	if top <= 0 {
		top = DefaultTop
	}

	match, err := s.scorer.Match(query, top, nil)
	if err != nil {
		return nil, classify(err)
	}

	db := s.scorer.Database()
	resp := &ScoreResponse{
		Scores:  make([]ScoreEntry, len(match.Ranked)),
		Images:  db.Len(),
		Cached:  match.Cached,
		Version: db.Version(),
	}
	for i, sc := range match.Ranked {
		resp.Scores[i] = ScoreEntry{ImageID: sc.ImageID, Distance: sc.Distance}
	}

	s.logger.Debug("Query scored", map[string]interface{}{
		"descriptors": query.Rows(),
		"top":         top,
		"cached":      match.Cached,
	})
	return resp, nil
}

// Stats describes the database and cache
func (s *Service) Stats(ctx context.Context) (*StatsResponse, error) {
	return &StatsResponse{
		Database:      s.scorer.Database().Stats(),
		Cache:         s.scorer.CacheStats(),
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	}, nil
}

// Health reports liveness
func (s *Service) Health(ctx context.Context) (*HealthResponse, error) {
	return &HealthResponse{
		Status:        "healthy",
		Version:       Version,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	}, nil
}

// classify maps database errors onto the request/availability sentinels
func classify(err error) error {
	switch {
	case errors.Is(err, bow.ErrKindMismatch), errors.Is(err, bow.ErrDimensionMismatch):
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	case errors.Is(err, bow.ErrEmptyDatabase), errors.Is(err, bow.ErrTreeNotBuilt):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return err
	}
}
