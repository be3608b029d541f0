package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalGuard(t *testing.T) {
	g := NewLocalGuard()
	ctx := context.Background()

	release, ok, err := g.TryLock(ctx, "fax1/fax1.pdf")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = g.TryLock(ctx, "fax1/fax1.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = g.TryLock(ctx, "fax2/fax2.pdf")
	assert.True(t, ok)

	release()
	release()
	_, ok, _ = g.TryLock(ctx, "fax1/fax1.pdf")
	assert.True(t, ok)
}
