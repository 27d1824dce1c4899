// Package issues implements the issue operations behind the HTTP, MCP and
// CLI surfaces: filtering, validation and the document store calls.
package issues

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/issuetracker/internal/models"
	"github.com/joescharf/issuetracker/internal/project"
	"github.com/joescharf/issuetracker/internal/store"
)

// ListQuery carries the raw list filters as received from a client.
type ListQuery struct {
	Open       string
	AssignedTo string
}

// Service performs issue operations against per-project collections.
type Service struct {
	store    store.Store
	projects *project.Registry
	now      func() time.Time
}

// NewService creates a Service. A nil registry accepts any well-formed project name.
func NewService(s store.Store, r *project.Registry) *Service {
	if r == nil {
		r, _ = project.NewRegistry()
	}
	return &Service{
		store:    s,
		projects: r,
		now:      time.Now,
	}
}

// BuildFilter turns list query values into a store filter. open is applied
// only for the exact strings "true" and "false"; any other value is ignored.
func BuildFilter(q ListQuery) store.Filter {
	filter := store.Filter{}
	switch q.Open {
	case "true":
		filter[models.FieldOpen] = true
	case "false":
		filter[models.FieldOpen] = false
	}
	if q.AssignedTo != "" {
		filter[models.FieldAssignedTo] = q.AssignedTo
	}
	return filter
}

func (s *Service) collection(op, name string) (store.Collection, error) {
	coll, err := s.projects.Resolve(name)
	if errors.Is(err, project.ErrUnknownProject) {
		return nil, newError(KindNotFound, op, err)
	}
	if err != nil {
		return nil, newError(KindValidation, op, err)
	}
	return s.store.Collection(coll), nil
}

// List returns the project's issues matching q, in store order.
func (s *Service) List(ctx context.Context, projectName string, q ListQuery) ([]models.Document, error) {
	const op = "list issues"
	c, err := s.collection(op, projectName)
	if err != nil {
		return nil, err
	}

	docs, err := c.Find(ctx, BuildFilter(q))
	if err != nil {
		return nil, newError(KindStore, op, err)
	}
	return docs, nil
}

// Get returns a single issue by id.
func (s *Service) Get(ctx context.Context, projectName, id string) (models.Document, error) {
	const op = "get issue"
	c, err := s.collection(op, projectName)
	if err != nil {
		return nil, err
	}
	id, err = parseID(op, id)
	if err != nil {
		return nil, err
	}

	docs, err := c.Find(ctx, store.Filter{models.FieldID: id})
	if err != nil {
		return nil, newError(KindStore, op, err)
	}
	if len(docs) == 0 {
		return nil, newError(KindNotFound, op, fmt.Errorf("%w: %s", ErrNoSuchIssue, id))
	}
	return docs[0], nil
}

// Create validates doc and inserts it. The three required fields must be
// truthy; optional fields receive their defaults and unknown fields are kept.
func (s *Service) Create(ctx context.Context, projectName string, doc models.Document) (*store.InsertOneResult, error) {
	const op = "create issue"
	c, err := s.collection(op, projectName)
	if err != nil {
		return nil, err
	}

	if missing := doc.MissingRequired(); len(missing) > 0 {
		return nil, newError(KindValidation, op,
			fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", ")))
	}

	d := doc.Clone()
	delete(d, models.FieldID)
	d.ApplyDefaults(s.now())

	res, err := c.InsertOne(ctx, d)
	if err != nil {
		return nil, newError(KindStore, op, err)
	}
	return res, nil
}

// Update applies every field of body except _id and created_on to the issue
// named by body's _id. A well-formed id that matches nothing still succeeds
// with a zero MatchedCount, as does a body with no fields to apply.
func (s *Service) Update(ctx context.Context, projectName string, body models.Document) (*store.UpdateResult, error) {
	const op = "update issue"
	c, err := s.collection(op, projectName)
	if err != nil {
		return nil, err
	}

	id, err := parseID(op, body.ID())
	if err != nil {
		return nil, err
	}

	patch := UpdateDocument(body)
	var cleared []string
	for _, f := range models.RequiredFields {
		if v, ok := patch[f]; ok && !models.Truthy(v) {
			cleared = append(cleared, f)
		}
	}
	if len(cleared) > 0 {
		return nil, newError(KindValidation, op,
			fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(cleared, ", ")))
	}
	if len(patch) > 0 {
		patch[models.FieldUpdatedOn] = models.FormatTimestamp(s.now())
	}

	res, err := c.UpdateOne(ctx, id, patch)
	if err != nil {
		if errors.Is(err, store.ErrInvalidID) {
			return nil, newError(KindValidation, op, err)
		}
		return nil, newError(KindStore, op, err)
	}
	return res, nil
}

// Delete removes the issue with the given id. Deleting an id that matches
// nothing succeeds with a zero DeletedCount.
func (s *Service) Delete(ctx context.Context, projectName, id string) (*store.DeleteResult, error) {
	const op = "delete issue"
	c, err := s.collection(op, projectName)
	if err != nil {
		return nil, err
	}

	id, err = parseID(op, id)
	if err != nil {
		return nil, err
	}

	res, err := c.DeleteOne(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrInvalidID) {
			return nil, newError(KindValidation, op, err)
		}
		return nil, newError(KindStore, op, err)
	}
	return res, nil
}

// Projects lists the collections that currently hold issues.
func (s *Service) Projects(ctx context.Context) ([]*models.Project, error) {
	projects, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, newError(KindStore, "list projects", err)
	}
	return projects, nil
}

// UpdateDocument returns the fields of body an update may set.
func UpdateDocument(body models.Document) models.Document {
	patch := body.Clone()
	delete(patch, models.FieldID)
	delete(patch, models.FieldCreatedOn)
	return patch
}

func parseID(op, id string) (string, error) {
	if id == "" {
		return "", newError(KindValidation, op, ErrMissingID)
	}
	canonical, err := store.ParseID(id)
	if err != nil {
		return "", newError(KindValidation, op, err)
	}
	return canonical, nil
}
