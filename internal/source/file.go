package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/julianstephens/streakline/internal/logger"
)

// ErrUnknownMetric is returned when the feed has no series for a metric.
var ErrUnknownMetric = errors.New("unknown metric")

// feed is the on-disk export format written by a device bridge:
//
//	{"authorization": "authorized", "metrics": {"steps": {"2026-03-01": 8120}}}
type feed struct {
	Authorization string                        `json:"authorization"`
	Metrics       map[string]map[string]float64 `json:"metrics"`
}

// FileSource reads a JSON export produced by an external device bridge. The file
// is re-read when its modification time changes.
type FileSource struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	size    int64
	cached  *feed
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Path() string {
	return s.path
}

// AuthorizationStatus reports Undetermined while no export exists yet.
func (s *FileSource) AuthorizationStatus(ctx context.Context) (Authorization, error) {
	if err := ctx.Err(); err != nil {
		return Undetermined, err
	}
	f, err := s.load()
	if errors.Is(err, os.ErrNotExist) {
		return Undetermined, nil
	}
	if err != nil {
		return Undetermined, err
	}
	return ParseAuthorization(f.Authorization), nil
}

// DailyAggregate returns 0 for a day the export has no sample for.
func (s *FileSource) DailyAggregate(ctx context.Context, metric, day string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := s.load()
	if err != nil {
		return 0, &MetricError{Metric: metric, Day: day, Err: err}
	}
	if ParseAuthorization(f.Authorization) != Authorized {
		return 0, &MetricError{Metric: metric, Day: day, Err: fmt.Errorf("access %s", ParseAuthorization(f.Authorization))}
	}
	series, ok := f.Metrics[metric]
	if !ok {
		return 0, &MetricError{Metric: metric, Day: day, Err: ErrUnknownMetric}
	}
	v := series[day]
	if v < 0 {
		v = 0
	}
	return v, nil
}

func (s *FileSource) load() (*feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, err
	}
	if s.cached != nil && info.ModTime().Equal(s.modTime) && info.Size() == s.size {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var f feed
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	logger.Debug("Loaded source export", "path", s.path, "metrics", len(f.Metrics))
	s.cached, s.modTime, s.size = &f, info.ModTime(), info.Size()
	return s.cached, nil
}
