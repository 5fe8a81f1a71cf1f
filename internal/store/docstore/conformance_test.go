package docstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mideind/explo/internal/store"
	"github.com/mideind/explo/internal/store/docstore"
	"github.com/mideind/explo/internal/store/storetest"
	"github.com/mideind/explo/internal/testutil"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend {
		uri, dbName := testutil.SetupTestMongoURI(t)
		b, err := docstore.Open(context.Background(), uri, dbName)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = b.Client().Disconnect(context.Background())
		})
		return b
	})
}
