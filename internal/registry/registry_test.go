package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
tables:
  owners:
    posts: content
    feed_entries: feed
topics:
  - topic: post.created
    producer: content
    event_kinds: [post.created]
    schema_version: 1
    partitions: 8
    retention_days: 7
subscriptions:
  - service: feed
    topic: post.created
    group: feed-projector
    start_position: earliest
    max_in_flight: 8
    dead_letter_topic: post.created.dlq
`

func TestLoad_ParsesOwnersTopicsAndSubscriptions(t *testing.T) {
	t.Parallel()

	reg, err := Load([]byte(sampleYAML))
	require.NoError(t, err)

	owner, err := reg.OwnerOf("posts")
	require.NoError(t, err)
	assert.Equal(t, ServiceId("content"), owner)

	producer, err := reg.ProducerOf("post.created")
	require.NoError(t, err)
	assert.Equal(t, ServiceId("content"), producer)

	assert.Equal(t, []ServiceId{"feed"}, reg.ConsumersOf("post.created"))
}

func TestOwnerOf_UnregisteredTableIsConfigError(t *testing.T) {
	t.Parallel()

	reg, err := Load([]byte(sampleYAML))
	require.NoError(t, err)

	_, err = reg.OwnerOf("unknown_table")
	var unregErr *UnregisteredTableError
	assert.ErrorAs(t, err, &unregErr)
}

func TestIsAllowed_OnlyOwnerMayReadOrWrite(t *testing.T) {
	t.Parallel()

	reg, err := Load([]byte(sampleYAML))
	require.NoError(t, err)

	assert.True(t, reg.IsAllowed("content", "posts", AccessWrite))
	assert.False(t, reg.IsAllowed("feed", "posts", AccessWrite))
	assert.False(t, reg.IsAllowed("feed", "posts", AccessRead))
}

func TestVerifyOwnership_MismatchFailsBoot(t *testing.T) {
	t.Parallel()

	reg, err := Load([]byte(sampleYAML))
	require.NoError(t, err)

	require.NoError(t, reg.VerifyOwnership("content", []string{"posts"}))

	err = reg.VerifyOwnership("feed", []string{"posts"})
	var mismatch *OwnerMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestDependencyGraph_DetectsCycle(t *testing.T) {
	t.Parallel()

	g := NewDependencyGraph()
	g.AddCall("gateway", "auth")
	g.AddCall("auth", "user")
	g.AddCall("user", "auth")

	err := g.VerifyAcyclic()
	var cycleErr *CycleError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestDependencyGraph_AcyclicPasses(t *testing.T) {
	t.Parallel()

	g := NewDependencyGraph()
	g.AddCall("gateway", "content")
	g.AddCall("gateway", "feed")
	g.AddCall("feed", "content")

	assert.NoError(t, g.VerifyAcyclic())
}
