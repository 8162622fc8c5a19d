package libraries

import (
	"context"
	"database/sql"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stumpapp/stump/pkg/errcodes"
	"github.com/stumpapp/stump/pkg/migrations"
	"github.com/stumpapp/stump/pkg/models"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()

	var ecErr *errcodes.Error
	require.True(t, errors.As(err, &ecErr), "expected an errcodes error, got %v", err)
	assert.Equal(t, http.StatusUnprocessableEntity, ecErr.HTTPCode)
}

func TestCreateLibrary(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	dir := t.TempDir()

	library := &models.Library{
		Name:            "Comics",
		Path:            dir,
		ThumbnailConfig: models.DefaultThumbnailConfig(),
		IgnoreRules:     []string{"*.tmp"},
	}
	err := svc.CreateLibrary(ctx, library)
	require.NoError(t, err)

	assert.Len(t, library.ID, 36)
	assert.Equal(t, models.EntityStatusReady, library.Status)
	assert.Equal(t, models.LibraryPatternSeriesBased, library.Pattern)

	found, err := svc.RetrieveLibrary(ctx, RetrieveLibraryOptions{ID: &library.ID})
	require.NoError(t, err)
	assert.Equal(t, "Comics", found.Name)
	require.NotNil(t, found.ThumbnailConfig)
	assert.Equal(t, models.ThumbnailFormatWebp, found.ThumbnailConfig.Format)
	assert.Equal(t, []string{"*.tmp"}, found.IgnoreRules)
}

func TestCreateLibrary_DuplicateName(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	require.NoError(t, svc.CreateLibrary(ctx, &models.Library{Name: "Comics", Path: t.TempDir()}))

	err := svc.CreateLibrary(ctx, &models.Library{Name: "Comics", Path: t.TempDir()})
	require.Error(t, err)

	var ecErr *errcodes.Error
	require.True(t, errors.As(err, &ecErr))
	assert.Equal(t, http.StatusConflict, ecErr.HTTPCode)
}

func TestCreateLibrary_PathConflicts(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, svc.CreateLibrary(ctx, &models.Library{Name: "Comics", Path: dir}))

	// Same path.
	err := svc.CreateLibrary(ctx, &models.Library{Name: "Duplicate", Path: dir})
	assertValidationError(t, err)

	// Nested inside an existing library.
	err = svc.CreateLibrary(ctx, &models.Library{Name: "Nested", Path: filepath.Join(dir, "sub")})
	assertValidationError(t, err)

	// Containing an existing library.
	err = svc.CreateLibrary(ctx, &models.Library{Name: "Parent", Path: filepath.Dir(dir)})
	assertValidationError(t, err)

	// Sibling trees are fine.
	require.NoError(t, svc.CreateLibrary(ctx, &models.Library{Name: "Books", Path: t.TempDir()}))
}

func TestRetrieveLibrary_NotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	id := "missing"
	_, err := svc.RetrieveLibrary(context.Background(), RetrieveLibraryOptions{ID: &id})
	assert.ErrorIs(t, err, errcodes.NotFound("Library"))
}

func TestRetrieveLibrary_ByPath(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, svc.CreateLibrary(ctx, &models.Library{Name: "Comics", Path: dir}))

	found, err := svc.RetrieveLibrary(ctx, RetrieveLibraryOptions{Path: &dir})
	require.NoError(t, err)
	assert.Equal(t, "Comics", found.Name)
}

func TestListLibraries_SeriesCount(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	library := &models.Library{Name: "Comics", Path: t.TempDir()}
	require.NoError(t, svc.CreateLibrary(ctx, library))

	now := time.Now()
	series := []*models.Series{
		{ID: "ser-1", LibraryID: library.ID, Name: "A", Path: filepath.Join(library.Path, "A"), Status: models.EntityStatusReady, CreatedAt: now, UpdatedAt: now},
		{ID: "ser-2", LibraryID: library.ID, Name: "B", Path: filepath.Join(library.Path, "B"), Status: models.EntityStatusReady, CreatedAt: now, UpdatedAt: now},
	}
	_, err := db.NewInsert().Model(&series).Exec(ctx)
	require.NoError(t, err)

	libraries, total, err := svc.ListLibrariesWithTotal(ctx, ListLibrariesOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, libraries, 1)
	assert.Equal(t, 2, libraries[0].SeriesCount)
}

func TestUpdateLibrary(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	library := &models.Library{Name: "Comics", Path: t.TempDir()}
	require.NoError(t, svc.CreateLibrary(ctx, library))

	library.Name = "Manga"
	library.ConvertRARToZip = true
	library.IgnoreRules = []string{"drafts/**"}
	err := svc.UpdateLibrary(ctx, library, UpdateLibraryOptions{
		Columns: []string{"name", "convert_rar_to_zip", "ignore_rules"},
	})
	require.NoError(t, err)

	found, err := svc.RetrieveLibrary(ctx, RetrieveLibraryOptions{ID: &library.ID})
	require.NoError(t, err)
	assert.Equal(t, "Manga", found.Name)
	assert.True(t, found.ConvertRARToZip)
	assert.Equal(t, []string{"drafts/**"}, found.IgnoreRules)
}

func TestUpdateLibrary_PathConflict(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	dir := t.TempDir()

	first := &models.Library{Name: "Comics", Path: dir}
	require.NoError(t, svc.CreateLibrary(ctx, first))
	second := &models.Library{Name: "Books", Path: t.TempDir()}
	require.NoError(t, svc.CreateLibrary(ctx, second))

	second.Path = filepath.Join(dir, "inner")
	err := svc.UpdateLibrary(ctx, second, UpdateLibraryOptions{Columns: []string{"path"}})
	assertValidationError(t, err)

	// Updating a library against its own path is not a conflict.
	first.Name = "Still Comics"
	require.NoError(t, svc.UpdateLibrary(ctx, first, UpdateLibraryOptions{Columns: []string{"name"}}))
}

func TestDeleteLibrary_Cascades(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	library := &models.Library{Name: "Comics", Path: t.TempDir()}
	require.NoError(t, svc.CreateLibrary(ctx, library))

	now := time.Now()
	series := &models.Series{
		ID: "ser-1", LibraryID: library.ID, Name: "A",
		Path: filepath.Join(library.Path, "A"), Status: models.EntityStatusReady,
		CreatedAt: now, UpdatedAt: now,
	}
	_, err := db.NewInsert().Model(series).Exec(ctx)
	require.NoError(t, err)

	media := []*models.Media{
		{ID: "med-1", SeriesID: "ser-1", Name: "001.cbz", Path: filepath.Join(series.Path, "001.cbz"), Extension: "cbz", Status: models.EntityStatusReady, CreatedAt: now, UpdatedAt: now},
		{ID: "med-2", SeriesID: "ser-1", Name: "002.cbz", Path: filepath.Join(series.Path, "002.cbz"), Extension: "cbz", Status: models.EntityStatusReady, CreatedAt: now, UpdatedAt: now},
	}
	_, err = db.NewInsert().Model(&media).Exec(ctx)
	require.NoError(t, err)

	session := &models.ReadingSession{ID: "sess-1", MediaID: "med-1", UserRef: "reader", StartedAt: now, UpdatedAt: now}
	_, err = db.NewInsert().Model(session).Exec(ctx)
	require.NoError(t, err)

	mediaIDs, err := svc.DeleteLibrary(ctx, library.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"med-1", "med-2"}, mediaIDs)

	for _, model := range []interface{}{
		(*models.ReadingSession)(nil),
		(*models.Media)(nil),
		(*models.Series)(nil),
		(*models.Library)(nil),
	} {
		count, err := db.NewSelect().Model(model).Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	}
}

func TestDeleteLibrary_NotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	_, err := svc.DeleteLibrary(context.Background(), "missing")
	assert.ErrorIs(t, err, errcodes.NotFound("Library"))
}
