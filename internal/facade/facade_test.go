package facade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phamhung075/4genthub-sub028/internal/services"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	return NewFactory(&services.Services{}, nil, nil, 8, 0)
}

func TestFactoryRequiresUser(t *testing.T) {
	factory := newTestFactory(t)

	_, err := factory.Projects("")
	require.NotNil(t, err)
	assert.Equal(t, models.ErrCodeUnauthenticated, err.Code)
}

func TestFactoryCachesPerUserAndAggregate(t *testing.T) {
	factory := newTestFactory(t)

	first, err := factory.Tasks("alice")
	require.Nil(t, err)
	second, err := factory.Tasks("alice")
	require.Nil(t, err)
	assert.Same(t, first, second)

	other, err := factory.Tasks("bob")
	require.Nil(t, err)
	assert.NotSame(t, first, other)
}

func TestFactoryTTLExpiresEntries(t *testing.T) {
	factory := NewFactory(&services.Services{}, nil, nil, 8, 20*time.Millisecond)

	first, err := factory.Tasks("alice")
	require.Nil(t, err)

	time.Sleep(40 * time.Millisecond)

	rebuilt, err := factory.Tasks("alice")
	require.Nil(t, err)
	assert.NotSame(t, first, rebuilt)
}

func TestFactoryInvalidate(t *testing.T) {
	factory := newTestFactory(t)

	aliceTasks, err := factory.Tasks("alice")
	require.Nil(t, err)
	bobTasks, err := factory.Tasks("bob")
	require.Nil(t, err)

	factory.Invalidate("alice")

	rebuilt, err := factory.Tasks("alice")
	require.Nil(t, err)
	assert.NotSame(t, aliceTasks, rebuilt)

	// Bob's facade survives Alice's invalidation
	still, err := factory.Tasks("bob")
	require.Nil(t, err)
	assert.Same(t, bobTasks, still)
}
