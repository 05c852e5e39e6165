package repository_test

import (
	"context"
	"errors"
	"testing"

	"erequisition/internal/model"
	"erequisition/internal/repository"
	"erequisition/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInTx_RollsBackNestedWork(t *testing.T) {
	db := testutil.NewDB(t)
	txManager := repository.NewTransactionManager(db)
	users := repository.NewUserRepository(db)
	ctx := context.Background()

	boom := errors.New("boom")
	err := txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := users.Create(txCtx, &model.User{Name: "Tx One", Email: "tx.one@example.com", Password: "x", Role: model.RoleEmployee, Branch: model.BranchZambia}); err != nil {
			return err
		}
		// the inner call joins the outer transaction
		return txManager.RunInTx(txCtx, func(inner context.Context) error {
			if err := users.Create(inner, &model.User{Name: "Tx Two", Email: "tx.two@example.com", Password: "x", Role: model.RoleEmployee, Branch: model.BranchZambia}); err != nil {
				return err
			}
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	count, err := users.CountByRole(ctx, model.RoleEmployee)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRunInTx_Commits(t *testing.T) {
	db := testutil.NewDB(t)
	txManager := repository.NewTransactionManager(db)
	users := repository.NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, txManager.RunInTx(ctx, func(txCtx context.Context) error {
		return users.Create(txCtx, &model.User{Name: "Tx Admin", Email: "tx.admin@example.com", Password: "x", Role: model.RoleAdmin, Branch: model.BranchEswatini})
	}))

	ids, err := users.AdminIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}
