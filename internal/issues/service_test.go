package issues

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issuetracker/internal/models"
	"github.com/joescharf/issuetracker/internal/project"
	"github.com/joescharf/issuetracker/internal/store"
)

var fixedNow = time.Date(2024, 6, 3, 1, 2, 3, 456000000, time.UTC)

func newTestService(t *testing.T, allowed ...string) (*Service, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	r, err := project.NewRegistry(allowed...)
	require.NoError(t, err)

	svc := NewService(s, r)
	svc.now = func() time.Time { return fixedNow }
	return svc, s
}

func validIssue() models.Document {
	return models.Document{
		"issue_title": "Fix error in posting data",
		"issue_text":  "When we post data it has an error.",
		"created_by":  "Joe",
	}
}

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name string
		q    ListQuery
		want store.Filter
	}{
		{"empty", ListQuery{}, store.Filter{}},
		{"open true", ListQuery{Open: "true"}, store.Filter{"open": true}},
		{"open false", ListQuery{Open: "false"}, store.Filter{"open": false}},
		{"open ignored", ListQuery{Open: "yes"}, store.Filter{}},
		{"open case sensitive", ListQuery{Open: "TRUE"}, store.Filter{}},
		{"assigned", ListQuery{AssignedTo: "Joe"}, store.Filter{"assigned_to": "Joe"}},
		{"both", ListQuery{Open: "true", AssignedTo: "Joe"}, store.Filter{"open": true, "assigned_to": "Joe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildFilter(tt.q))
		})
	}
}

func TestCreate_AppliesDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Create(ctx, "apitest", validIssue())
	require.NoError(t, err)
	assert.True(t, res.Acknowledged)
	assert.NotEmpty(t, res.InsertedID)

	got, err := svc.Get(ctx, "apitest", res.InsertedID)
	require.NoError(t, err)
	assert.Equal(t, res.InsertedID, got.ID())
	assert.Equal(t, true, got["open"])
	assert.Equal(t, "", got["assigned_to"])
	assert.Equal(t, "", got["status_text"])
	assert.Equal(t, "2024-06-03T01:02:03.456Z", got["created_on"])
	assert.Equal(t, "2024-06-03T01:02:03.456Z", got["updated_on"])
}

func TestCreate_KeepsCallerFields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	doc := validIssue()
	doc["open"] = false
	doc["assigned_to"] = "Ann"
	doc["created_on"] = "2017-01-08T06:35:14.240Z"
	doc["severity"] = "high"
	doc["_id"] = "caller-chosen"

	res, err := svc.Create(ctx, "apitest", doc)
	require.NoError(t, err)
	assert.NotEqual(t, "caller-chosen", res.InsertedID)

	got, err := svc.Get(ctx, "apitest", res.InsertedID)
	require.NoError(t, err)
	assert.Equal(t, false, got["open"])
	assert.Equal(t, "Ann", got["assigned_to"])
	assert.Equal(t, "2017-01-08T06:35:14.240Z", got["created_on"])
	assert.Equal(t, "high", got["severity"])
	assert.Equal(t, "caller-chosen", doc["_id"], "input must not be mutated")
}

func TestCreate_MissingRequiredFields(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	for _, field := range models.RequiredFields {
		for _, falsy := range []any{nil, "", false, 0.0} {
			doc := validIssue()
			if falsy == nil {
				delete(doc, field)
			} else {
				doc[field] = falsy
			}

			_, err := svc.Create(ctx, "apitest", doc)
			require.Error(t, err, "field %s = %v", field, falsy)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.ErrorIs(t, err, ErrMissingFields)
		}
	}

	docs, err := s.Collection("apitest").Find(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, docs, "nothing should be persisted")
}

func TestList_Filters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	seed := func(open bool, assignee string) {
		doc := validIssue()
		doc["open"] = open
		doc["assigned_to"] = assignee
		_, err := svc.Create(ctx, "apitest", doc)
		require.NoError(t, err)
	}
	seed(true, "Joe")
	seed(false, "Joe")
	seed(true, "Ann")

	all, err := svc.List(ctx, "apitest", ListQuery{Open: "maybe"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	open, err := svc.List(ctx, "apitest", ListQuery{Open: "true"})
	require.NoError(t, err)
	require.Len(t, open, 2)
	for _, d := range open {
		assert.Equal(t, true, d["open"])
	}

	joeOpen, err := svc.List(ctx, "apitest", ListQuery{Open: "true", AssignedTo: "Joe"})
	require.NoError(t, err)
	require.Len(t, joeOpen, 1)
	assert.Equal(t, "Joe", joeOpen[0]["assigned_to"])
}

func TestList_UnknownProject(t *testing.T) {
	svc, _ := newTestService(t, "allowed")

	_, err := svc.List(context.Background(), "other", ListQuery{})
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.ErrorIs(t, err, project.ErrUnknownProject)

	_, err = svc.List(context.Background(), "bad name", ListQuery{})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, "apitest", validIssue())
	require.NoError(t, err)

	later := fixedNow.Add(time.Hour)
	svc.now = func() time.Time { return later }

	res, err := svc.Update(ctx, "apitest", models.Document{
		"_id":        created.InsertedID,
		"issue_text": "New issue text",
		"open":       false,
		"created_on": "1999-01-01T00:00:00.000Z",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.MatchedCount)
	assert.Equal(t, int64(1), res.ModifiedCount)

	got, err := svc.Get(ctx, "apitest", created.InsertedID)
	require.NoError(t, err)
	assert.Equal(t, "New issue text", got["issue_text"])
	assert.Equal(t, false, got["open"])
	assert.Equal(t, "2024-06-03T01:02:03.456Z", got["created_on"], "created_on is immutable")
	assert.Equal(t, "2024-06-03T02:02:03.456Z", got["updated_on"])
}

func TestUpdate_NoFieldsIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, "apitest", validIssue())
	require.NoError(t, err)

	res, err := svc.Update(ctx, "apitest", models.Document{"_id": created.InsertedID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.MatchedCount)
	assert.Equal(t, int64(0), res.ModifiedCount)
}

func TestUpdate_NoMatchStillSucceeds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, "apitest", validIssue())
	require.NoError(t, err)

	// Same id, different project.
	res, err := svc.Update(ctx, "other", models.Document{"_id": created.InsertedID, "issue_text": "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.MatchedCount)
}

func TestUpdate_ValidationErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, "apitest", validIssue())
	require.NoError(t, err)

	_, err = svc.Update(ctx, "apitest", models.Document{"issue_text": "x"})
	assert.Equal(t, KindValidation, KindOf(err))
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = svc.Update(ctx, "apitest", models.Document{"_id": "2"})
	assert.Equal(t, KindValidation, KindOf(err))
	assert.ErrorIs(t, err, store.ErrInvalidID)

	_, err = svc.Update(ctx, "apitest", models.Document{"_id": 2.0})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = svc.Update(ctx, "apitest", models.Document{"_id": created.InsertedID, "issue_title": ""})
	assert.Equal(t, KindValidation, KindOf(err))
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, "apitest", validIssue())
	require.NoError(t, err)

	res, err := svc.Delete(ctx, "apitest", created.InsertedID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.DeletedCount)

	res, err = svc.Delete(ctx, "apitest", created.InsertedID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.DeletedCount)

	_, err = svc.Get(ctx, "apitest", created.InsertedID)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = svc.Delete(ctx, "apitest", "")
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = svc.Delete(ctx, "apitest", "1")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestProjects(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, "b", validIssue())
	require.NoError(t, err)
	_, err = svc.Create(ctx, "a", validIssue())
	require.NoError(t, err)

	projects, err := svc.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "a", projects[0].Name)
	assert.Equal(t, 1, projects[0].OpenCount)
}

// brokenStore fails every call.
type brokenStore struct{ err error }

func (b *brokenStore) Collection(name string) store.Collection { return &brokenCollection{b.err} }
func (b *brokenStore) ListCollections(context.Context) ([]*models.Project, error) {
	return nil, b.err
}
func (b *brokenStore) Ping(context.Context) error    { return b.err }
func (b *brokenStore) Migrate(context.Context) error { return b.err }
func (b *brokenStore) Close() error                  { return nil }

type brokenCollection struct{ err error }

func (b *brokenCollection) Find(context.Context, store.Filter) ([]models.Document, error) {
	return nil, b.err
}
func (b *brokenCollection) InsertOne(context.Context, models.Document) (*store.InsertOneResult, error) {
	return nil, b.err
}
func (b *brokenCollection) UpdateOne(context.Context, string, models.Document) (*store.UpdateResult, error) {
	return nil, b.err
}
func (b *brokenCollection) DeleteOne(context.Context, string) (*store.DeleteResult, error) {
	return nil, b.err
}

func TestStoreFailures(t *testing.T) {
	boom := errors.New("disk on fire")
	svc := NewService(&brokenStore{err: boom}, nil)
	ctx := context.Background()
	id := "01HZ0000000000000000000000"

	_, err := svc.List(ctx, "p", ListQuery{})
	assert.Equal(t, KindStore, KindOf(err))
	assert.ErrorIs(t, err, boom)

	_, err = svc.Create(ctx, "p", validIssue())
	assert.Equal(t, KindStore, KindOf(err))

	_, err = svc.Update(ctx, "p", models.Document{"_id": id, "open": false})
	assert.Equal(t, KindStore, KindOf(err))

	_, err = svc.Delete(ctx, "p", id)
	assert.Equal(t, KindStore, KindOf(err))

	_, err = svc.Projects(ctx)
	assert.Equal(t, KindStore, KindOf(err))
}

func TestKindOf_ForeignError(t *testing.T) {
	assert.Equal(t, Kind(0), KindOf(errors.New("x")))
	assert.Equal(t, "validation", KindValidation.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
