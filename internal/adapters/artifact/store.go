package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/okian/retention/internal/adapters/tabular"
	"github.com/okian/retention/internal/domain/gbm"
	"github.com/okian/retention/internal/domain/panel"
	"github.com/okian/retention/internal/domain/report"
	"github.com/okian/retention/internal/domain/training"
	"github.com/okian/retention/pkg/logger"
)

const (
	latestKey    = "models/latest"
	jsonType     = "application/json"
	csvType      = "text/csv"
	textType     = "text/plain"
	ensembleFile = "ensemble.json"
	metadataFile = "metadata.json"
)

// Store keeps models, reports and panels on a Backend. Model versions are
// immutable; the latest pointer moves only after both model files landed.
type Store struct {
	backend Backend
	logger  logger.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore returns a Store over b.
func NewStore(b Backend, opts ...StoreOption) *Store {
	s := &Store{backend: b, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func modelKey(version, file string) string { return "models/" + version + "/" + file }

// ReportKey returns the key a job's report is stored under.
func ReportKey(jobID string) string { return "reports/" + jobID + ".json" }

// PanelKey returns the key a job's panel export is stored under.
func PanelKey(jobID string) string { return "panels/" + jobID + ".csv" }

// SaveModel stores the ensemble and metadata of m and then points latest at it.
func (s *Store) SaveModel(ctx context.Context, m *training.Model) error {
	if err := m.Check(); err != nil {
		return err
	}
	version := m.Metadata.Version
	if version == "" {
		return fmt.Errorf("save model: %w", ErrEmptyKey)
	}
	if rc, err := s.backend.Get(ctx, modelKey(version, metadataFile)); err == nil {
		rc.Close()
		return fmt.Errorf("%w: %s", ErrModelExists, version)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	if err := s.putJSON(ctx, modelKey(version, ensembleFile), m.Ensemble); err != nil {
		return err
	}
	if err := s.putJSON(ctx, modelKey(version, metadataFile), m.Metadata); err != nil {
		return err
	}
	if err := s.backend.Put(ctx, latestKey, strings.NewReader(version), textType); err != nil {
		return err
	}
	s.logger.Info(ctx, "model published",
		logger.String("version", version),
		logger.Int("features", len(m.Metadata.Features)))
	return nil
}

// LatestModel loads the most recently published model.
func (s *Store) LatestModel(ctx context.Context) (*training.Model, error) {
	rc, err := s.backend.Get(ctx, latestKey)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoModel
	}
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("read latest model pointer: %w", err)
	}
	version := strings.TrimSpace(string(raw))
	if version == "" {
		return nil, ErrNoModel
	}
	return s.LoadModel(ctx, version)
}

// LoadModel loads a model by version.
func (s *Store) LoadModel(ctx context.Context, version string) (*training.Model, error) {
	m := &training.Model{Ensemble: &gbm.Model{}}
	if err := s.getJSON(ctx, modelKey(version, ensembleFile), m.Ensemble); err != nil {
		return nil, err
	}
	if err := s.getJSON(ctx, modelKey(version, metadataFile), &m.Metadata); err != nil {
		return nil, err
	}
	if err := m.Check(); err != nil {
		return nil, fmt.Errorf("model %s: %w", version, err)
	}
	return m, nil
}

// SaveReport stores r for jobID and returns its key.
func (s *Store) SaveReport(ctx context.Context, jobID string, r *report.Report) (string, error) {
	key := ReportKey(jobID)
	if err := s.putJSON(ctx, key, r); err != nil {
		return "", err
	}
	return key, nil
}

// LoadReport returns the raw JSON report of jobID.
func (s *Store) LoadReport(ctx context.Context, jobID string) ([]byte, error) {
	rc, err := s.backend.Get(ctx, ReportKey(jobID))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// SavePanel stores f as CSV for jobID and returns its key.
func (s *Store) SavePanel(ctx context.Context, jobID string, f *panel.Frame) (string, error) {
	var buf bytes.Buffer
	if err := tabular.WritePanel(&buf, f); err != nil {
		return "", fmt.Errorf("encode panel: %w", err)
	}
	key := PanelKey(jobID)
	if err := s.backend.Put(ctx, key, &buf, csvType); err != nil {
		return "", err
	}
	return key, nil
}

// LoadPanel reads the panel stored under key.
func (s *Store) LoadPanel(ctx context.Context, key string) (*panel.Frame, error) {
	rc, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return tabular.ReadPanel(rc)
}

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.backend.Put(ctx, key, bytes.NewReader(raw), jsonType)
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	rc, err := s.backend.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
