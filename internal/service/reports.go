// Package service implements the report workflows: submission with proximity
// validation and reverse geocoding, lifecycle transitions under a row lock,
// and closed-report deletion.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nammaooru/civicreport/internal/events"
	"github.com/nammaooru/civicreport/internal/geo"
	"github.com/nammaooru/civicreport/internal/geocoding"
	"github.com/nammaooru/civicreport/internal/lifecycle"
	"github.com/nammaooru/civicreport/internal/models"
	"github.com/nammaooru/civicreport/internal/observability"
	"github.com/nammaooru/civicreport/internal/storage"
)

var (
	// ErrMissingImage is returned when a submission has no photo attached.
	ErrMissingImage = errors.New("image is required")
	// ErrReportNotClosed is returned when deletion is attempted on a report
	// that has not reached the closed state.
	ErrReportNotClosed = errors.New("only closed reports can be deleted")
)

// Store is the persistence surface the service needs. *db.Postgres satisfies it.
type Store interface {
	InsertReport(ctx context.Context, r *models.Report) error
	MutateReport(ctx context.Context, id uuid.UUID, fn func(*models.Report) error) (*models.Report, error)
	DeleteReport(ctx context.Context, id uuid.UUID, fn func(*models.Report) error) error
}

// Geocoder resolves coordinates to an address, falling back rather than failing.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) geocoding.Address
}

// Service owns the report workflows.
type Service struct {
	store     Store
	geocoder  Geocoder
	images    storage.ImageStore
	publisher events.Publisher
	metrics   observability.MetricsRegistry
	logger    *zap.Logger

	maxCorrectionM float64
	now            func() time.Time
}

// New creates a Service. publisher may be nil when eventing is disabled.
func New(store Store, geocoder Geocoder, images storage.ImageStore, publisher events.Publisher,
	metrics observability.MetricsRegistry, logger *zap.Logger, maxCorrectionM float64) *Service {
	if maxCorrectionM <= 0 {
		maxCorrectionM = geo.DefaultMaxCorrectionM
	}
	return &Service{
		store:          store,
		geocoder:       geocoder,
		images:         images,
		publisher:      publisher,
		metrics:        metrics,
		logger:         logger,
		maxCorrectionM: maxCorrectionM,
		now:            time.Now,
	}
}

// Submission is the input to Submit.
type Submission struct {
	UserID      uuid.UUID
	Category    string
	Description string
	Address     string

	CapturedLatitude  float64
	CapturedLongitude float64
	CapturedAccuracy  float64

	// Optional corrected location. Both set or both nil.
	UserLatitude  *float64
	UserLongitude *float64

	Image         io.Reader
	ImageFilename string
	ImageType     string
	ImageSize     int64
}

// Submit validates the submission, resolves its address and persists a new
// open report. Geocoding happens before the insert transaction opens, so a
// slow provider never holds a database lock.
func (s *Service) Submit(ctx context.Context, sub Submission) (*models.Report, error) {
	if sub.Image == nil {
		return nil, ErrMissingImage
	}

	captured := geo.Point{Lat: sub.CapturedLatitude, Lng: sub.CapturedLongitude}
	var corrected *geo.Point
	if sub.UserLatitude != nil && sub.UserLongitude != nil {
		corrected = &geo.Point{Lat: *sub.UserLatitude, Lng: *sub.UserLongitude}
	}
	validation, err := geo.ValidateProximity(captured, corrected, s.maxCorrectionM)
	if err != nil {
		s.metrics.IncrementProximityRejections()
		return nil, err
	}

	addr := s.geocoder.ReverseGeocode(ctx, validation.Canonical.Lat, validation.Canonical.Lng)

	// A provided address wins over the geocoded one; the match score is only
	// a triage hint, never a gate.
	address := sub.Address
	if address == "" {
		address = addr.FormattedAddress
	} else {
		match := geocoding.ValidateAddressMatch(sub.Address, addr)
		s.logger.Debug("Address match scored",
			zap.Float64("confidence", match.Confidence),
			zap.Bool("matches", match.Matches))
	}

	imageURL, err := s.images.Put(ctx, sub.ImageFilename, sub.ImageType, sub.Image, sub.ImageSize)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	priority := models.PriorityLow
	report := &models.Report{
		UserID:             sub.UserID,
		Category:           sub.Category,
		Description:        sub.Description,
		Address:            address,
		ImageURL:           imageURL,
		CapturedLatitude:   sub.CapturedLatitude,
		CapturedLongitude:  sub.CapturedLongitude,
		CapturedAccuracy:   sub.CapturedAccuracy,
		Latitude:           validation.Canonical.Lat,
		Longitude:          validation.Canonical.Lng,
		Status:             models.StatusOpen,
		Priority:           &priority,
		VerificationStatus: models.VerificationPending,
	}
	if validation.Corrected {
		report.UserLatitude = sub.UserLatitude
		report.UserLongitude = sub.UserLongitude
		d := validation.DistanceM
		report.LocationDistanceM = &d
	}

	if err := s.store.InsertReport(ctx, report); err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}

	s.metrics.IncrementReportsCreated(report.Category)
	s.logger.Info("Report created",
		zap.String("report_id", report.ID.String()),
		zap.String("category", report.Category),
		zap.Bool("location_corrected", validation.Corrected))

	s.publish(ctx, events.TypeReportCreated, report)
	return report, nil
}

// Transition applies one lifecycle transition atomically. The lifecycle rules
// run inside the row lock so concurrent transitions on the same report
// serialize instead of clobbering each other.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, req lifecycle.Request) (*models.Report, error) {
	now := s.now()
	var escalated bool
	report, err := s.store.MutateReport(ctx, id, func(r *models.Report) error {
		before := r.ReopenCount
		if err := lifecycle.Transition(r, req, now); err != nil {
			return err
		}
		escalated = r.ReopenCount > before
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementTransitions(string(report.Status))
	if escalated {
		s.metrics.IncrementEscalations()
	}
	s.logger.Info("Report transitioned",
		zap.String("report_id", report.ID.String()),
		zap.String("status", string(report.Status)),
		zap.Int("reopen_count", report.ReopenCount))

	s.publish(ctx, events.TypeReportTransitioned, report)
	return report, nil
}

// Delete removes a report, but only once it has reached the closed state.
// The guard runs under the same row lock as the delete.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteReport(ctx, id, func(r *models.Report) error {
		if r.Status != models.StatusClosed {
			return ErrReportNotClosed
		}
		return nil
	})
}

func (s *Service) publish(ctx context.Context, eventType string, r *models.Report) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, events.NewEvent(eventType, r, s.now()))
}
