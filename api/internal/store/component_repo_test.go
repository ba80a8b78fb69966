package store

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ui-annotator/api/internal/annotate"
)

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(schemaSQL)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "create table if not exists component_results")
	assert.Contains(t, stmts[1], "create index")
	assert.Empty(t, splitStatements(" ; \n ;"))
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Skipf("database unreachable: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestComponentRepo_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewComponentRepo(db)
	require.NoError(t, repo.EnsureSchema(ctx))

	shotID := "test-" + time.Now().Format("150405.000000")
	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), `delete from component_results where screenshot_id = $1`, shotID)
	})

	box := &annotate.PixelBox{XMin: 1, YMin: 2, XMax: 30, YMax: 40}
	comps := []annotate.ComponentDetectionResult{
		{
			ScreenshotID:  shotID,
			ComponentName: "Header",
			Status:        annotate.ComponentSuccess,
			Elements: []annotate.ElementDetectionItem{
				{Label: "Header > Logo", Status: annotate.StatusDetected, BoundingBox: box, InferenceTimeMs: 12},
			},
			AnnotatedImage: []byte{1, 2, 3},
			CreatedAt:      time.Now().UTC(),
		},
		{ScreenshotID: shotID, ComponentName: "Footer", Status: annotate.ComponentFailed},
	}
	require.NoError(t, repo.SaveAll(ctx, comps))
	require.NotEmpty(t, comps[0].ID)
	firstID := comps[0].ID

	got, err := repo.FindByScreenshot(ctx, shotID, true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Footer", got[0].ComponentName)
	assert.Empty(t, got[0].Elements)
	header := got[1]
	assert.Equal(t, firstID, header.ID)
	assert.Equal(t, []byte{1, 2, 3}, header.AnnotatedImage)
	assert.Equal(t, box, header.Elements[0].BoundingBox)
	assert.Nil(t, header.Metadata)

	header.Metadata = &annotate.ComponentMetadata{PatternName: "App bar"}
	header.Description = "top"
	require.NoError(t, repo.UpdateMerged(ctx, &header))

	got, err = repo.FindByScreenshot(ctx, shotID, false)
	require.NoError(t, err)
	assert.Nil(t, got[1].AnnotatedImage)
	require.NotNil(t, got[1].Metadata)
	assert.Equal(t, "App bar", got[1].Metadata.PatternName)
	assert.Equal(t, "top", got[1].Description)

	// a fresh run replaces the component but keeps its id
	rerun := []annotate.ComponentDetectionResult{{ID: "00000000-0000-0000-0000-000000000001", ScreenshotID: shotID, ComponentName: "Header", Status: annotate.ComponentPartial}}
	require.NoError(t, repo.SaveAll(ctx, rerun))
	assert.Equal(t, firstID, rerun[0].ID)

	missing := annotate.ComponentDetectionResult{ID: "00000000-0000-0000-0000-000000000002"}
	assert.ErrorIs(t, repo.UpdateMerged(ctx, &missing), ErrNotFound)

	_, err = repo.PurgeOlderThan(ctx, 0)
	assert.Error(t, err)
}
