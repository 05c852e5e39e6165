package repository_test

import (
	"context"
	"path/filepath"
	"testing"

	"erequisition/internal/database"
	"erequisition/internal/model"
	"erequisition/internal/repository"
	"erequisition/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"
)

// withLaggingReplica registers an empty replica on db, standing in for one
// that has not caught up with the primary yet.
func withLaggingReplica(t *testing.T, db *gorm.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "replica.db")
	replica, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(replica))
	sqlDB, err := replica.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	require.NoError(t, db.Use(dbresolver.Register(dbresolver.Config{
		Replicas: []gorm.Dialector{sqlite.Open(path)},
	})))
}

func TestReplicaRouting_WorkflowReadsHitPrimary(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "Replica Reader", model.RoleEmployee)
	withLaggingReplica(t, db)

	repo := repository.NewRequisitionRepository(db, decimal.NewFromInt(10000))
	users := repository.NewUserRepository(db)
	reports := repository.NewReportRepository(db)
	ctx := context.Background()

	req := newDraft(user.ID, "250", "Cleaning supplies")
	require.NoError(t, repo.Create(ctx, req))

	loaded, err := repo.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cleaning supplies", loaded.Purpose)
	assert.Equal(t, user.ID, loaded.Requester.ID)

	byEmail, err := users.GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	// reports opt into the replica, which has not seen the insert
	count, err := reports.Count(ctx, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReplicaRouting_TransactionStaysOnPrimary(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "Replica Writer", model.RoleEmployee)
	withLaggingReplica(t, db)

	repo := repository.NewRequisitionRepository(db, decimal.NewFromInt(10000))
	reports := repository.NewReportRepository(db)
	txManager := repository.NewTransactionManager(db)

	err := txManager.RunInTx(context.Background(), func(txCtx context.Context) error {
		req := newDraft(user.ID, "400", "Stationery")
		if err := repo.Create(txCtx, req); err != nil {
			return err
		}
		count, err := reports.Count(txCtx, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		return nil
	})
	require.NoError(t, err)
}
