package changefeed

import (
	"testing"
	"time"

	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeDecodesTaggedRows(t *testing.T) {
	post := "p1"
	group := models.GroupKey("p1", models.NotificationLikePost)
	n := models.Notification{
		ID:          "n1",
		RecipientID: "u2",
		ActorID:     "u1",
		Type:        models.NotificationLikePost,
		ReferenceID: "p1",
		GroupID:     &group,
		PostID:      &post,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := encodeEnvelope("node-a", Event{Seq: 7, Op: OpInsert, Row: n})
	require.NoError(t, err)

	origin, op, row, err := decodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "node-a", origin)
	assert.Equal(t, OpInsert, op)
	decoded, ok := row.(models.Notification)
	require.True(t, ok)
	assert.Equal(t, n, decoded)

	data, err = encodeEnvelope("node-b", Event{Op: OpDelete, Row: like("p1", "u1")})
	require.NoError(t, err)
	_, _, row, err = decodeEnvelope(data)
	require.NoError(t, err)
	edge, ok := row.(models.Edge)
	require.True(t, ok)
	assert.Equal(t, models.RelationLikes, edge.Relation)
	assert.Equal(t, "u1", edge.UserID)
}

func TestDecodeEnvelopeRejectsUnknown(t *testing.T) {
	_, _, _, err := decodeEnvelope([]byte(`{"origin":"x","op":"TRUNCATE","relation":"likes","row":{}}`))
	assert.Error(t, err)

	_, _, _, err = decodeEnvelope([]byte(`{"origin":"x","op":"INSERT","relation":"stories","row":{}}`))
	assert.Error(t, err)
}
