package plan_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soorma-platform/soorma/pkg/dbutil"
	"github.com/soorma-platform/soorma/pkg/plan"
	"github.com/soorma-platform/soorma/test/dbtest"
)

// newTestStore reuses the Memory Service's migrations: plan_context and
// task_context are created there since both services share one database.
func newTestStore(t *testing.T) *plan.Store {
	migrations := os.DirFS("../memory/migrations")
	cfg := dbtest.NewTestDB(t, migrations, ".")
	db, err := dbutil.Open(context.Background(), *cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return plan.NewStore(db)
}

func TestStore_CreateAndGetPlan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p, err := store.CreatePlan(ctx, "t1", "u1", plan.CreateRequest{
		PlanID: "plan-1", GoalEvent: "research.requested", CorrelationIDs: []string{"client-corr-1"},
	})
	require.NoError(t, err)
	assert.Contains(t, p.CorrelationIDs, "plan-1")
	assert.Contains(t, p.CorrelationIDs, "client-corr-1")

	got, err := store.GetPlanContext(ctx, "t1", "plan-1")
	require.NoError(t, err)
	assert.Equal(t, "research.requested", got.GoalEvent)
}

func TestStore_GetPlanByCorrelation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreatePlan(ctx, "t1", "u1", plan.CreateRequest{
		PlanID: "plan-2", GoalEvent: "research.requested", CorrelationIDs: []string{"client-corr-2"},
	})
	require.NoError(t, err)

	p, err := store.GetPlanByCorrelation(ctx, "t1", "client-corr-2")
	require.NoError(t, err)
	assert.Equal(t, "plan-2", p.PlanID)
}

func TestStore_UpdatePlanStateIsTransactional(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreatePlan(ctx, "t1", "u1", plan.CreateRequest{PlanID: "plan-3", GoalEvent: "x"})
	require.NoError(t, err)

	updated, err := store.UpdatePlanState(ctx, "t1", "plan-3", func(c *plan.Context) error {
		c.Status = plan.StatusRunning
		c.CurrentState = "delegating"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, plan.StatusRunning, updated.Status)
	assert.Equal(t, "delegating", updated.CurrentState)
}

func TestStore_TaskUpsertAndSubtaskLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertTaskContext(ctx, "t1", "u1", plan.TaskUpsertRequest{
		TaskID: "task-1", SubTasks: []string{"sub-1", "sub-2"},
	})
	require.NoError(t, err)

	found, err := store.GetTaskBySubtask(ctx, "t1", "sub-2")
	require.NoError(t, err)
	assert.Equal(t, "task-1", found.TaskID)

	_, err = store.GetTaskBySubtask(ctx, "t1", "sub-not-a-member")
	assert.Error(t, err)
}

func TestStore_TaskIDIsolatedPerTenant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertTaskContext(ctx, "tenant-a", "u1", plan.TaskUpsertRequest{TaskID: "shared-id"})
	require.NoError(t, err)
	_, err = store.UpsertTaskContext(ctx, "tenant-b", "u1", plan.TaskUpsertRequest{TaskID: "shared-id"})
	require.NoError(t, err)

	a, err := store.GetTaskContext(ctx, "tenant-a", "shared-id")
	require.NoError(t, err)
	b, err := store.GetTaskContext(ctx, "tenant-b", "shared-id")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestStore_DeleteTaskContextIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertTaskContext(ctx, "t1", "u1", plan.TaskUpsertRequest{TaskID: "task-del"})
	require.NoError(t, err)

	require.NoError(t, store.DeleteTaskContext(ctx, "t1", "task-del"))
	require.NoError(t, store.DeleteTaskContext(ctx, "t1", "task-del"))
}
