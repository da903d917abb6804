package tx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextCarriesTransaction(t *testing.T) {
	ctx := context.Background()
	_, ok := From(ctx)
	assert.False(t, ok)

	assert.Equal(t, ctx, WithTx(ctx, nil))

	outer := &sql.Tx{}
	got, ok := From(WithTx(ctx, outer))
	assert.True(t, ok)
	assert.Same(t, outer, got)
}

func TestRunJoinsOuterTransaction(t *testing.T) {
	outer := &sql.Tx{}
	called := false
	err := Run(WithTx(context.Background(), outer), nil, func(_ context.Context, tx *sql.Tx) error {
		called = true
		assert.Same(t, outer, tx)
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
}
