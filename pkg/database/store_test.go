package database_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	forgedb "github.com/componentforge/forge/pkg/database"
	"github.com/componentforge/forge/pkg/models"
	"github.com/componentforge/forge/pkg/pipeline"
	testdb "github.com/componentforge/forge/test/database"
)

func TestStore_SaveAndGetRun(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	store := forgedb.NewStore(client)
	ctx := context.Background()

	result := &pipeline.Result{
		RunID:  "11111111-1111-1111-1111-111111111111",
		Status: models.RunCompleted,
		Code: &models.GeneratedCode{
			Component: "export const x = 1;",
			Status:    models.RunCompleted,
			Metadata:  models.GenerationMetadata{PatternUsed: "shadcn-button"},
		},
		Report:  &models.QualityReport{RunID: "11111111-1111-1111-1111-111111111111", Status: models.ReportPass},
		Context: &pipeline.RunContext{RunID: "11111111-1111-1111-1111-111111111111", CacheHit: false, CostUSD: 0.12},
	}

	require.NoError(t, store.SaveRun(ctx, result))

	loaded, err := store.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.RunID, loaded.RunID)
	assert.Equal(t, models.RunCompleted, loaded.Status)
	assert.Equal(t, "export const x = 1;", loaded.Code.Component)
	assert.Equal(t, models.ReportPass, loaded.Report.Status)

	summaries, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "shadcn-button", summaries[0].PatternID)
	assert.Equal(t, "PASS", summaries[0].ReportStatus)
}

func TestStore_GetRunMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	store := forgedb.NewStore(client)

	_, err := store.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStore_CacheRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	store := forgedb.NewStore(client)
	ctx := context.Background()

	_, hit, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, hit)

	code := &models.GeneratedCode{Component: "export const a = 1;", Status: models.RunCompleted}
	require.NoError(t, store.Set(ctx, "k1", code))

	got, hit, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, code.Component, got.Component)

	// Idempotent upsert of the identical value.
	require.NoError(t, store.Set(ctx, "k1", code))

	health, err := forgedb.Health(ctx, client.DB())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}
