package sqlstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mideind/explo/internal/store"
	"github.com/mideind/explo/internal/store/sqlstore"
	"github.com/mideind/explo/internal/store/storetest"
	"github.com/mideind/explo/internal/testutil"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend {
		dsn := testutil.SetupTestDSN(t)
		b, err := sqlstore.Open(context.Background(), dsn)
		require.NoError(t, err)
		t.Cleanup(func() { b.Pool().Close() })
		return b
	})
}
