package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/tcmtongue/internal/domain"
	"github.com/vbonduro/tcmtongue/internal/metrics"
	"github.com/vbonduro/tcmtongue/internal/photostore"
	"github.com/vbonduro/tcmtongue/internal/vision"
)

// savedNamePrefix is prepended to the uploaded filename to form the name of the
// saved copy.
const savedNamePrefix = "patient_"

// ErrRecordNotFound is returned by the review operations for an unknown ID.
var ErrRecordNotFound = errors.New("record not found")

// recordRepository is the subset of store.RecordStore that AnalysisService requires.
type recordRepository interface {
	Create(ctx context.Context, rec *domain.Record) (*domain.Record, error)
	GetByID(ctx context.Context, id string) (*domain.Record, error)
	List(ctx context.Context) ([]*domain.Record, error)
	CountByStorageKey(ctx context.Context, storageKey string) (int, error)
	Delete(ctx context.Context, id string) error
}

// Texts holds the fixed strings the service sends and displays.
type Texts struct {
	Prompt              string
	BoilingInstructions string
}

type AnalysisService struct {
	records   recordRepository
	generator vision.Generator
	photoStg  photostore.PhotoStore
	texts     Texts
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewAnalysisService(
	records recordRepository,
	generator vision.Generator,
	photoStg photostore.PhotoStore,
	texts Texts,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AnalysisService {
	return &AnalysisService{
		records:   records,
		generator: generator,
		photoStg:  photoStg,
		texts:     texts,
		metrics:   m,
		logger:    logger,
	}
}

// Result is what the upload page shows after an analysis. Instructions are set
// as soon as generation succeeds; SavedAs and Record only once the photo and
// its record are stored.
type Result struct {
	ID           string
	Analysis     string
	Instructions string
	SavedAs      string
	Record       *domain.Record
}

// SavedName returns the name under which an upload called filename is stored.
func SavedName(filename string) string {
	return savedNamePrefix + filepath.Base(filename)
}

// Analyze sends the image to the generator, then saves a copy as
// patient_<filename> and records the outcome for review.
//
// If generation fails the result is nil. If a later step fails the returned
// Result still carries the analysis text and instructions so they can be shown
// with the error.
func (s *AnalysisService) Analyze(ctx context.Context, filename string, imageData []byte, mimeType string) (*Result, error) {
	requestID := uuid.NewString()
	logger := s.logger.With("request_id", requestID, "filename", filename)
	logger.Info("analysis started", "mime_type", mimeType, "bytes", len(imageData), "backend", s.generator.Name())

	start := time.Now()
	text, err := s.generator.Generate(ctx, bytes.NewReader(imageData), mimeType, s.texts.Prompt)
	s.metrics.ObserveGenerate(time.Since(start))
	if err != nil {
		s.metrics.ObserveAnalysis(metrics.OutcomeGenerateError)
		logger.Error("generation failed", "error", err)
		return nil, fmt.Errorf("failed to analyze image: %w", err)
	}
	logger.Info("generation complete", "chars", len(text), "duration_ms", time.Since(start).Milliseconds())

	result := &Result{ID: requestID, Analysis: text, Instructions: s.texts.BoilingInstructions}

	storageKey := SavedName(filename)
	if err := s.photoStg.Save(ctx, storageKey, bytes.NewReader(imageData)); err != nil {
		s.metrics.ObserveAnalysis(metrics.OutcomeSaveError)
		logger.Error("save failed", "storage_key", storageKey, "error", err)
		return result, fmt.Errorf("failed to save photo: %w", err)
	}
	s.metrics.ObserveSavedImage()
	logger.Debug("photo saved", "storage_key", storageKey)

	rec, err := s.records.Create(ctx, &domain.Record{
		ID:               requestID,
		OriginalFilename: filename,
		StorageKey:       storageKey,
		MimeType:         mimeType,
		Backend:          s.generator.Name(),
		Analysis:         text,
	})
	if err != nil {
		s.metrics.ObserveAnalysis(metrics.OutcomeSaveError)
		logger.Error("record failed", "error", err)
		return result, fmt.Errorf("failed to create record: %w", err)
	}

	result.SavedAs = storageKey
	result.Record = rec
	s.metrics.ObserveAnalysis(metrics.OutcomeSuccess)
	logger.Info("analysis complete", "storage_key", storageKey)
	return result, nil
}

func (s *AnalysisService) ListRecords(ctx context.Context) ([]*domain.Record, error) {
	return s.records.List(ctx)
}

// GetRecord returns nil, nil when the record does not exist.
func (s *AnalysisService) GetRecord(ctx context.Context, id string) (*domain.Record, error) {
	return s.records.GetByID(ctx, id)
}

// OpenRecordPhoto opens the saved image for a record. The file may have been
// overwritten by a later upload with the same name.
func (s *AnalysisService) OpenRecordPhoto(ctx context.Context, id string) (io.ReadCloser, string, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get record: %w", err)
	}
	if rec == nil {
		return nil, "", ErrRecordNotFound
	}
	reader, mimeType, err := s.photoStg.Get(ctx, rec.StorageKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open photo: %w", err)
	}
	return reader, mimeType, nil
}

// DeleteRecord removes a record, or returns ErrRecordNotFound. The saved image
// is removed only once no other record refers to it.
func (s *AnalysisService) DeleteRecord(ctx context.Context, id string) error {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get record: %w", err)
	}
	if rec == nil {
		return ErrRecordNotFound
	}

	if err := s.records.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	remaining, err := s.records.CountByStorageKey(ctx, rec.StorageKey)
	if err != nil {
		return fmt.Errorf("failed to count records: %w", err)
	}
	if remaining > 0 {
		return nil
	}

	if err := s.photoStg.Delete(ctx, rec.StorageKey); err != nil {
		s.logger.Error("failed to delete photo file", "storage_key", rec.StorageKey, "error", err)
	}
	return nil
}
