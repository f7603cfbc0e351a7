package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionDocumentRoundTrip(t *testing.T) {
	session := sampleSession()

	doc, err := toDocument(session)
	require.NoError(t, err)
	assert.Equal(t, "room-1", doc.FinalStateDoc["roomId"])

	doc.FinalState = nil
	back, err := fromDocument(doc)
	require.NoError(t, err)
	assert.Nil(t, back.FinalStateDoc)
	assert.JSONEq(t, string(session.FinalState), string(back.FinalState))
}

func TestToDocumentRejectsBrokenState(t *testing.T) {
	session := sampleSession()
	session.FinalState = []byte(`{"nope"`)
	_, err := toDocument(session)
	assert.Error(t, err)
}
