package registry

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReleaser struct{ released *int }

func (c countingReleaser) ReleaseBuffer() error {
	*c.released++
	return nil
}

func TestRegisterRootCreatesBucket(t *testing.T) {
	r := New()
	released := 0
	root := uuid.New()
	require.NoError(t, r.Register(root, countingReleaser{&released}, uuid.UUID{}))
	assert.Equal(t, 1, r.LiveBuckets())
	assert.Equal(t, 1, r.LiveStorages())
}

func TestDeregisterLastMemberReleasesOnce(t *testing.T) {
	r := New()
	released := 0
	root := uuid.New()
	require.NoError(t, r.Register(root, countingReleaser{&released}, uuid.UUID{}))

	child := uuid.New()
	require.NoError(t, r.Register(child, nil, root))
	assert.Equal(t, 1, r.LiveBuckets())
	assert.Equal(t, 2, r.LiveStorages())

	require.NoError(t, r.Deregister(child))
	assert.Equal(t, 0, released)

	require.NoError(t, r.Deregister(root))
	assert.Equal(t, 1, released)
	assert.Equal(t, 0, r.LiveStorages())
}

func TestRegisterUnknownParentFails(t *testing.T) {
	r := New()
	err := r.Register(uuid.New(), nil, uuid.New())
	assert.Error(t, err)
}

func TestDeregisterUnknownFails(t *testing.T) {
	r := New()
	err := r.Deregister(uuid.New())
	assert.Error(t, err)
}

func TestTeardownFailsWhenNotEmpty(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(uuid.New(), countingReleaser{new(int)}, uuid.UUID{}))
	assert.Error(t, r.Teardown())
}

func TestTeardownSucceedsWhenEmpty(t *testing.T) {
	r := New()
	assert.NoError(t, r.Teardown())
}

func TestRecorderCapturesAndFreesIntermediates(t *testing.T) {
	r := New()
	released := 0
	root := uuid.New()
	require.NoError(t, r.Register(root, countingReleaser{&released}, uuid.UUID{}))

	rec := r.StartRecording()
	child := uuid.New()
	require.NoError(t, r.Register(child, nil, root))
	require.NoError(t, r.StopRecording(rec))

	require.NoError(t, r.FreeAll(rec))
	assert.Equal(t, 0, released) // root is still registered, bucket not empty yet
	assert.Equal(t, 1, r.LiveStorages())

	require.NoError(t, r.Deregister(root))
	assert.Equal(t, 1, released)
}

func TestNestedRecordersMustStopLIFO(t *testing.T) {
	r := New()
	outer := r.StartRecording()
	inner := r.StartRecording()

	err := r.StopRecording(outer)
	assert.Error(t, err, "stopping outer before inner must fail")

	require.NoError(t, r.StopRecording(inner))
	require.NoError(t, r.StopRecording(outer))
}

func TestDeregisterWhileRecorderActiveRemovesFromRecorderSet(t *testing.T) {
	r := New()
	released := 0
	root := uuid.New()
	require.NoError(t, r.Register(root, countingReleaser{&released}, uuid.UUID{}))

	rec := r.StartRecording()
	child := uuid.New()
	require.NoError(t, r.Register(child, nil, root))
	require.NoError(t, r.Deregister(child))
	require.NoError(t, r.StopRecording(rec))

	require.NoError(t, r.FreeAll(rec)) // nothing left to free, child already gone
	assert.Equal(t, 0, released)
}
