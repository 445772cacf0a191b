package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePublishEnvelope(t *testing.T) {
	env, err := DecodePublish("kds.jobs", []byte(`{"type":"publish","topic":"kds.jobs","event":"job.update","data":{"order_id":"1001"}}`))
	require.NoError(t, err)
	assert.Equal(t, FramePublish, env.Type)
	assert.Equal(t, "job.update", env.Event)
	assert.Equal(t, "kds.jobs", env.Meta.Channel)
	assert.JSONEq(t, `{"order_id":"1001"}`, string(env.Data))
}

func TestDecodePublishWrapsForeignPayload(t *testing.T) {
	env, err := DecodePublish("kds.delivery", []byte(`{"order_id":"1001","status":"assigned"}`))
	require.NoError(t, err)
	assert.Equal(t, FramePublish, env.Type)
	assert.Equal(t, "kds.delivery", env.Topic)
	assert.JSONEq(t, `{"order_id":"1001","status":"assigned"}`, string(env.Data))
}

func TestDecodePublishRejectsGarbage(t *testing.T) {
	_, err := DecodePublish("kds.jobs", []byte("not json"))
	assert.Error(t, err)
}
