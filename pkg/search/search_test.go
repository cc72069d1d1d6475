package search

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yz174/kliq/pkg/llm"
	"github.com/yz174/kliq/pkg/llm/llmtest"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/store/storetest"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, Cosine(nil, nil))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.False(t, math.IsNaN(Cosine([]float32{0}, []float32{0})))
}

type vec []float32

func (v vec) Vector() []float32 { return v }

func TestRankStableAndDropsEmpty(t *testing.T) {
	items := []vec{{1, 0}, nil, {0, 1}, {1, 0}, {}}
	got := Rank(items, []float32{1, 0})
	require.Len(t, got, 3)
	assert.Equal(t, vec{1, 0}, got[0].Item)
	assert.Equal(t, vec{1, 0}, got[1].Item)
	assert.Equal(t, vec{0, 1}, got[2].Item)
	assert.Greater(t, got[0].Score, got[2].Score)
}

func TestSemanticSearch(t *testing.T) {
	s, _ := storetest.Open(t, nil)
	a := storetest.User(t, s, "alice")
	eve := storetest.User(t, s, "eve")
	conv, err := s.CreateConversation(models.Conversation{Kind: models.KindGroup, Name: "g"}, []string{a.ID})
	require.NoError(t, err)
	add := func(text string, v []float32, deleted bool) {
		m, _, err := s.InsertMessage(models.Message{ConversationID: conv.ID, SenderID: a.ID, Content: text}, nil)
		require.NoError(t, err)
		if v != nil {
			require.NoError(t, s.SetMessageEmbedding(m.ID, v))
		}
		if deleted {
			_, err = s.SoftDeleteMessage(m.ID)
			require.NoError(t, err)
		}
	}
	add("pizza tonight", []float32{1, 0, 0}, false)
	add("deploy failed", []float32{0, 1, 0}, false)
	add("pasta maybe", []float32{0.9, 0.1, 0}, false)
	add("secret pizza", []float32{1, 0, 0}, true)
	add("not embedded yet", nil, false)

	fake := &llmtest.Fake{Vectors: map[string][]float32{"food": {1, 0, 0}}}
	e := New(s, fake, 2)
	ctx := context.Background()

	res, err := e.SemanticSearch(ctx, conv.ID, a.ID, " food ")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "pizza tonight", res[0].Content)
	assert.Equal(t, "pasta maybe", res[1].Content)

	_, err = e.SemanticSearch(ctx, conv.ID, a.ID, "  ")
	assert.True(t, errors.Is(err, models.ErrInvalidArgument))
	_, err = e.SemanticSearch(ctx, conv.ID, eve.ID, "food")
	assert.True(t, errors.Is(err, models.ErrUnauthorized))

	e = New(s, llm.Instrument(&llmtest.Fake{EmbedErr: llmtest.ErrDown}, 0), 10)
	_, err = e.SemanticSearch(ctx, conv.ID, a.ID, "food")
	assert.True(t, errors.Is(err, llm.ErrProviderFailure))
}
