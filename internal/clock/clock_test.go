package clock

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubAdvance(t *testing.T) {
	c := NewStub(1_000)
	assert.Equal(t, int64(1_000), NowMillis(c))
	c.Advance(250 * time.Millisecond)
	assert.Equal(t, int64(1_250), NowMillis(c))
}

func TestGenerators(t *testing.T) {
	a, b := ULIDGenerator{}.New(), ULIDGenerator{}.New()
	assert.NotEqual(t, a, b)
	_, err := ulid.ParseStrict(a)
	require.NoError(t, err)

	_, err = uuid.Parse(UUIDGenerator{}.New())
	require.NoError(t, err)
}
