// Package trademark is the application service behind the HTTP API: it accepts
// submissions, exposes the live result stream and answers history queries.
package trademark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dontdude/markcheck/internal/apperr"
	"github.com/dontdude/markcheck/internal/domain"
	"github.com/dontdude/markcheck/internal/subscription"
)

// Dispatcher hands jobs to the broker.
type Dispatcher interface {
	Dispatch(ctx context.Context, job domain.Job) (domain.Ack, error)
}

// Image is the uploaded trademark image of a submission.
type Image struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SubmitRequest is one trademark check request from an authenticated caller.
type SubmitRequest struct {
	OwnerKey        string
	Name            string
	ProductCategory string
	Image           Image
}

// Service wires the object store, dispatcher, result store and live registry together.
type Service struct {
	objects    domain.ObjectStore
	dispatcher Dispatcher
	results    domain.ResultStore
	users      domain.UserStore
	registry   *subscription.Registry
	now        func() time.Time
}

// NewService creates a Service.
func NewService(
	objects domain.ObjectStore,
	dispatcher Dispatcher,
	results domain.ResultStore,
	users domain.UserStore,
	registry *subscription.Registry,
) *Service {
	return &Service{
		objects:    objects,
		dispatcher: dispatcher,
		results:    results,
		users:      users,
		registry:   registry,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates req, uploads the image and dispatches the job.
// Nothing is published when the upload fails.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (domain.Ack, error) {
	if err := validate(&req); err != nil {
		return domain.Ack{}, err
	}

	imageURL, err := s.objects.Upload(ctx, domain.Object{
		Filename:    req.Image.Filename,
		ContentType: req.Image.ContentType,
		Size:        req.Image.Size,
		Body:        req.Image.Body,
	})
	if err != nil {
		slog.Error("Image upload failed", "ownerKey", req.OwnerKey, "filename", req.Image.Filename, "error", err)
		return domain.Ack{}, apperr.Wrap(err, apperr.CodeUnavailable, "image upload failed")
	}

	ack, err := s.dispatcher.Dispatch(ctx, domain.Job{
		OwnerKey:        req.OwnerKey,
		Name:            req.Name,
		ProductCategory: req.ProductCategory,
		ImageReference:  imageURL,
		SubmittedAt:     s.now(),
	})
	if err != nil {
		return domain.Ack{}, apperr.Wrap(err, apperr.CodeUnavailable, "trademark check could not be started")
	}
	return ack, nil
}

func validate(req *SubmitRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.ProductCategory = strings.TrimSpace(req.ProductCategory)

	switch {
	case req.OwnerKey == "":
		return apperr.Unauthorized("no token provided", domain.ErrUnauthenticated)
	case req.Name == "":
		return apperr.ValidationField("name", "name is required")
	case req.ProductCategory == "":
		return apperr.ValidationField("product_name", "product_name is required")
	case req.Image.Body == nil || req.Image.Size == 0:
		return apperr.ValidationField("image", "image is required")
	}
	return nil
}

// Listen attaches a live listener for ownerKey. Only results correlated after
// this call are delivered. Callers must Unlisten when done.
func (s *Service) Listen(ownerKey string) *subscription.Listener {
	return s.registry.Attach(ownerKey)
}

// Unlisten detaches l and closes its channel.
func (s *Service) Unlisten(l *subscription.Listener) {
	s.registry.Detach(l)
}

// History returns every stored record of ownerKey, oldest first.
func (s *Service) History(ctx context.Context, ownerKey string) (domain.History, error) {
	recs, err := s.results.ListByOwner(ctx, ownerKey)
	if err != nil {
		return domain.History{}, fmt.Errorf("list results for %s: %w", ownerKey, err)
	}
	if recs == nil {
		recs = []domain.Record{}
	}
	return domain.History{Records: recs}, nil
}
