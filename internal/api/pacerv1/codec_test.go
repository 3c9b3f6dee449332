package pacerv1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodec_Notification(t *testing.T) {
	codec := JSONCodec{}
	assert.Equal(t, "json", codec.Name())

	data, err := codec.Marshal(&Notification{
		Type:       NotificationTypeCue,
		SequenceNo: 7,
		Cue:        &CueInfo{Count: 2},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"CUE","sequenceNo":7,"cue":{"count":2}}`, string(data))

	var got Notification
	require.NoError(t, codec.Unmarshal(data, &got))
	assert.Equal(t, NotificationTypeCue, got.Type)
	assert.Equal(t, int32(2), got.Cue.Count)
	assert.Nil(t, got.SessionInfo)
}

func TestJSONCodec_EmptyBody(t *testing.T) {
	req := SetShapeRequest{Shape: "square"}
	require.NoError(t, JSONCodec{}.Unmarshal(nil, &req))
	assert.Equal(t, "square", req.Shape)
}

func TestJSONCodec_RejectsMalformed(t *testing.T) {
	var req SetPlanRequest
	assert.Error(t, JSONCodec{}.Unmarshal([]byte(`{"intervals":`), &req))
}
