package media

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/robinjoseph08/golib/pointerutil"
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

func seedSeries(t *testing.T, db *bun.DB, name string) *models.Series {
	t.Helper()

	ctx := context.Background()
	now := time.Now()
	library := &models.Library{
		ID:        "lib-" + name,
		Name:      name,
		Path:      filepath.Join(t.TempDir(), name),
		Status:    models.EntityStatusReady,
		Pattern:   models.LibraryPatternSeriesBased,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := db.NewInsert().Model(library).Exec(ctx)
	require.NoError(t, err)

	series := &models.Series{
		ID:        "ser-" + name,
		LibraryID: library.ID,
		Name:      name,
		Path:      filepath.Join(library.Path, name),
		Status:    models.EntityStatusReady,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = db.NewInsert().Model(series).Exec(ctx)
	require.NoError(t, err)

	return series
}

func TestCreateMedia(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	series := seedSeries(t, db, "saga")

	media := &models.Media{
		SeriesID:  series.ID,
		Name:      "Saga 001.cbz",
		Path:      filepath.Join(series.Path, "Saga 001.cbz"),
		Extension: "cbz",
		Size:      2048,
		Pages:     22,
	}
	err := svc.CreateMedia(ctx, media)
	require.NoError(t, err)

	assert.Len(t, media.ID, 36)
	assert.Equal(t, models.EntityStatusReady, media.Status)
}

func TestRetrieveMedia(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	series := seedSeries(t, db, "saga")

	media := &models.Media{
		SeriesID:  series.ID,
		Name:      "Saga 001.cbz",
		Path:      filepath.Join(series.Path, "Saga 001.cbz"),
		Extension: "cbz",
		Pages:     22,
		PageDimensions: []models.PageDimension{
			{Width: 800, Height: 1200},
			{Width: 1600, Height: 1200},
		},
	}
	require.NoError(t, svc.CreateMedia(ctx, media))

	found, err := svc.RetrieveMedia(ctx, RetrieveMediaOptions{ID: &media.ID})
	require.NoError(t, err)
	assert.Equal(t, "Saga 001.cbz", found.Name)
	require.NotNil(t, found.Series)
	assert.Equal(t, series.ID, found.Series.ID)
	require.Len(t, found.PageDimensions, 2)
	assert.Equal(t, 1600, found.PageDimensions[1].Width)

	byPath, err := svc.RetrieveMedia(ctx, RetrieveMediaOptions{Path: &media.Path})
	require.NoError(t, err)
	assert.Equal(t, media.ID, byPath.ID)
}

func TestRetrieveMedia_NotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	id := "missing"
	_, err := svc.RetrieveMedia(context.Background(), RetrieveMediaOptions{ID: &id})
	assert.ErrorIs(t, err, errcodes.NotFound("Media"))
}

func TestListMedia_Filters(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	saga := seedSeries(t, db, "saga")
	bone := seedSeries(t, db, "bone")

	seed := []struct {
		series *models.Series
		name   string
		status string
	}{
		{saga, "Saga 002.cbz", models.EntityStatusReady},
		{saga, "Saga 001.cbz", models.EntityStatusReady},
		{saga, "Saga 003.cbz", models.EntityStatusMissing},
		{bone, "Bone 001.cbz", models.EntityStatusReady},
	}
	for _, s := range seed {
		media := &models.Media{
			SeriesID:  s.series.ID,
			Name:      s.name,
			Path:      filepath.Join(s.series.Path, s.name),
			Extension: "cbz",
			Status:    s.status,
		}
		require.NoError(t, svc.CreateMedia(ctx, media))
	}

	// Series filter, name order.
	list, err := svc.ListMedia(ctx, ListMediaOptions{SeriesID: &saga.ID})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Saga 001.cbz", list[0].Name)
	assert.Equal(t, "Saga 002.cbz", list[1].Name)
	assert.Equal(t, "Saga 003.cbz", list[2].Name)

	// Library filter joins through series.
	list, err = svc.ListMedia(ctx, ListMediaOptions{LibraryID: &bone.LibraryID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Bone 001.cbz", list[0].Name)

	// Status filter.
	list, err = svc.ListMedia(ctx, ListMediaOptions{
		SeriesID: &saga.ID,
		Statuses: []string{models.EntityStatusMissing},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Saga 003.cbz", list[0].Name)

	// Pagination with total.
	list, total, err := svc.ListMediaWithTotal(ctx, ListMediaOptions{
		SeriesID: &saga.ID,
		Limit:    pointerutil.Int(2),
	})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 3, total)
}

func TestUpdateMedia(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	series := seedSeries(t, db, "saga")

	media := &models.Media{
		SeriesID:  series.ID,
		Name:      "Saga 001.cbz",
		Path:      filepath.Join(series.Path, "Saga 001.cbz"),
		Extension: "cbz",
		Pages:     22,
	}
	require.NoError(t, svc.CreateMedia(ctx, media))

	media.Pages = 24
	media.Hash = pointerutil.String("abc123")
	media.PageDimensions = []models.PageDimension{{Width: 800, Height: 1200}}
	err := svc.UpdateMedia(ctx, media, UpdateMediaOptions{
		Columns: []string{"pages", "hash", "page_dimensions"},
	})
	require.NoError(t, err)

	found, err := svc.RetrieveMedia(ctx, RetrieveMediaOptions{ID: &media.ID})
	require.NoError(t, err)
	assert.Equal(t, 24, found.Pages)
	require.NotNil(t, found.Hash)
	assert.Equal(t, "abc123", *found.Hash)
	require.Len(t, found.PageDimensions, 1)
}

func TestMarkMediaStatus(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	series := seedSeries(t, db, "saga")

	media := &models.Media{
		SeriesID:  series.ID,
		Name:      "Saga 001.cbz",
		Path:      filepath.Join(series.Path, "Saga 001.cbz"),
		Extension: "cbz",
	}
	require.NoError(t, svc.CreateMedia(ctx, media))

	reason := "corrupt file"
	require.NoError(t, svc.MarkMediaStatus(ctx, media.ID, models.EntityStatusError, &reason))

	found, err := svc.RetrieveMedia(ctx, RetrieveMediaOptions{ID: &media.ID})
	require.NoError(t, err)
	assert.Equal(t, models.EntityStatusError, found.Status)
	require.NotNil(t, found.StatusReason)
	assert.Equal(t, "corrupt file", *found.StatusReason)

	// Clearing the status drops the reason.
	require.NoError(t, svc.MarkMediaStatus(ctx, media.ID, models.EntityStatusReady, nil))

	found, err = svc.RetrieveMedia(ctx, RetrieveMediaOptions{ID: &media.ID})
	require.NoError(t, err)
	assert.Equal(t, models.EntityStatusReady, found.Status)
	assert.Nil(t, found.StatusReason)

	err = svc.MarkMediaStatus(ctx, "missing-id", models.EntityStatusReady, nil)
	assert.ErrorIs(t, err, errcodes.NotFound("Media"))
}
