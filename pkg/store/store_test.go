package store_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yz174/kliq/pkg/live"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/store"
	"github.com/yz174/kliq/pkg/store/storetest"
	"github.com/yz174/kliq/pkg/timeutil"
)

func group(t *testing.T, s *store.Store, creator models.User, others ...models.User) models.Conversation {
	t.Helper()
	ids := []string{creator.ID}
	for _, o := range others {
		ids = append(ids, o.ID)
	}
	c, err := s.CreateConversation(models.Conversation{Kind: models.KindGroup, Name: "team", CreatedBy: creator.ID}, ids)
	require.NoError(t, err)
	return c
}

func send(t *testing.T, s *store.Store, convID, sender, content string) models.Message {
	t.Helper()
	m, _, err := s.InsertMessage(models.Message{ConversationID: convID, SenderID: sender, Content: content}, nil)
	require.NoError(t, err)
	return m
}

func TestUpsertUser(t *testing.T) {
	s, _ := storetest.Open(t, nil)

	u, created, err := s.UpsertUser(store.UserProfile{ExternalID: "clerk_1", Name: "Ada"})
	require.NoError(t, err)
	assert.True(t, created)

	p, found, err := s.GetPresence(u.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, p.IsOnline)

	again, created, err := s.UpsertUser(store.UserProfile{ExternalID: "clerk_1", Name: "Ada L", AvatarURL: "a.png"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "Ada L", again.Name)

	byExt, err := s.GetUserByExternalID("clerk_1")
	require.NoError(t, err)
	assert.Equal(t, "a.png", byExt.AvatarURL)

	_, err = s.GetUser("nope")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestListUsersExcludesCaller(t *testing.T) {
	s, _ := storetest.Open(t, nil)
	a := storetest.User(t, s, "alice")
	storetest.User(t, s, "bob")
	storetest.User(t, s, "carol")

	users, err := s.ListUsers(a.ID)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].Name)
	assert.Equal(t, "carol", users[1].Name)

	got, err := s.GetUsers([]string{a.ID, "missing", a.ID})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGetOrCreateDirectConverges(t *testing.T) {
	s, _ := storetest.Open(t, nil)
	a := storetest.User(t, s, "alice")
	b := storetest.User(t, s, "bob")

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x, y := a.ID, b.ID
			if i%2 == 1 {
				x, y = y, x
			}
			c, _, err := s.GetOrCreateDirect(x, y)
			assert.NoError(t, err)
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	convs, err := s.ListUserConversations(a.ID)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestInsertMessageOrdering(t *testing.T) {
	s, clock := storetest.Open(t, nil)
	a := storetest.User(t, s, "alice")
	b := storetest.User(t, s, "bob")
	c := group(t, s, a, b)

	m1 := send(t, s, c.ID, a.ID, "one")
	// clock does not move: timestamps must still be strictly increasing
	m2 := send(t, s, c.ID, b.ID, "two")
	clock.Set(storetest.Epoch.Add(-time.Hour))
	m3 := send(t, s, c.ID, a.ID, "three")

	assert.Less(t, m1.CreatedTS, m2.CreatedTS)
	assert.Less(t, m2.CreatedTS, m3.CreatedTS)
	assert.Equal(t, uint64(3), m3.Seq)

	msgs, err := s.ListMessages(c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})

	conv, err := s.GetConversation(c.ID)
	require.NoError(t, err)
	assert.Equal(t, m3.ID, conv.LastMessageID)
	assert.Equal(t, m3.CreatedTS, conv.ActivityTS())
}

func TestInsertMessagePersistsJobs(t *testing.T) {
	s, _ := storetest.Open(t, nil)
	a := storetest.User(t, s, "alice")
	c := group(t, s, a)

	m, jobs, err := s.InsertMessage(
		models.Message{ConversationID: c.ID, SenderID: a.ID, Content: "/summarize"},
		[]models.Job{{Kind: models.JobEmbed}, {Kind: models.JobAI, UserID: a.ID, Command: models.ArtifactSummary}},
	)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, m.ID, jobs[1].MessageID)
	assert.Less(t, jobs[0].Seq, jobs[1].Seq)

	pending, err := s.PendingJobs(0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, models.JobEmbed, pending[0].Kind)

	require.NoError(t, s.DeleteJob(pending[0].Seq))
	require.NoError(t, s.DeleteJob(pending[0].Seq))
	pending, err = s.PendingJobs(0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestJobSequenceSurvivesReopen(t *testing.T) {
	fs := vfs.NewMem()
	clock := timeutil.NewFake(storetest.Epoch)
	s, err := store.Open("db", store.Options{FS: fs, Clock: clock})
	require.NoError(t, err)
	u, _, err := s.UpsertUser(store.UserProfile{ExternalID: "x", Name: "x"})
	require.NoError(t, err)
	c, err := s.CreateConversation(models.Conversation{Kind: models.KindGroup, Name: "g"}, []string{u.ID})
	require.NoError(t, err)
	_, jobs, err := s.InsertMessage(models.Message{ConversationID: c.ID, SenderID: u.ID, Content: "hi"}, []models.Job{{Kind: models.JobEmbed}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.Open("db", store.Options{FS: fs, Clock: clock})
	require.NoError(t, err)
	defer s.Close()
	_, more, err := s.InsertMessage(models.Message{ConversationID: c.ID, SenderID: u.ID, Content: "again"}, []models.Job{{Kind: models.JobEmbed}})
	require.NoError(t, err)
	assert.Greater(t, more[0].Seq, jobs[0].Seq)
}

func TestSoftDeleteAndEmbedding(t *testing.T) {
	s, _ := storetest.Open(t, nil)
	a := storetest.User(t, s, "alice")
	c := group(t, s, a)
	m := send(t, s, c.ID, a.ID, "secret")

	require.NoError(t, s.SetMessageEmbedding(m.ID, []float32{1, 0}))
	del, err := s.SoftDeleteMessage(m.ID)
	require.NoError(t, err)
	assert.True(t, del.Deleted)
	assert.Equal(t, models.DeletedPlaceholder, del.DisplayContent())

	got, err := s.GetMessage(m.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, got.Embedding)
	assert.True(t, got.Deleted)
}

func TestLatestMessagesFilters(t *testing.T) {
	s, _ := storetest.Open(t, nil)
	a := storetest.User(t, s, "alice")
	b := storetest.User(t, s, "bob")
	c := group(t, s, a, b)
	for _, txt := range []string{"a1", "b1", "a2", "b2", "a3"} {
		sender := a.ID
		if txt[0] == 'b' {
			sender = b.ID
		}
		send(t, s, c.ID, sender, txt)
	}

	onlyA := func(m models.Message) bool { return m.SenderID == a.ID }
	got, err := s.LatestMessages(c.ID, 2, onlyA)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a2", got[0].Content)
	assert.Equal(t, "a3", got[1].Content)

	all, err := s.LatestMessages(c.ID, 10, nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestReadCursorAndUnread(t *testing.T) {
	s, _ := storetest.Open(t, nil)
	a := storetest.User(t, s, "alice")
	b := storetest.User(t, s, "bob")
	outsider := storetest.User(t, s, "eve")
	c := group(t, s, a, b)

	m1 := send(t, s, c.ID, b.ID, "1")
	m2 := send(t, s, c.ID, b.ID, "2")
	send(t, s, c.ID, a.ID, "mine")
	m4 := send(t, s, c.ID, b.ID, "4")

	n, err := s.CountUnread(c.ID, a.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	moved, err := s.AdvanceReadCursor(c.ID, a.ID, m2.ID)
	require.NoError(t, err)
	assert.True(t, moved)

	// older message never moves the cursor backwards
	moved, err = s.AdvanceReadCursor(c.ID, a.ID, m1.ID)
	require.NoError(t, err)
	assert.False(t, moved)

	mb, err := s.GetMembership(c.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, m2.ID, mb.LastReadMessageID)

	n, err = s.CountUnread(c.ID, a.ID, m2.CreatedTS)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	moved, err = s.AdvanceReadCursor(c.ID, outsider.ID, m4.ID)
	require.NoError(t, err)
	assert.False(t, moved)

	_, err = s.AdvanceReadCursor(c.ID, a.ID, "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestAddAndRemoveMember(t *testing.T) {
	s, _ := storetest.Open(t, nil)
	a := storetest.User(t, s, "alice")
	b := storetest.User(t, s, "bob")
	c := group(t, s, a)

	sys, err := s.AddMember(c.ID, b.ID, models.Message{SenderID: a.ID, Kind: models.MessageSystem, Content: "alice added bob to the group"})
	require.NoError(t, err)
	assert.Equal(t, models.MessageSystem, sys.Kind)

	_, err = s.AddMember(c.ID, b.ID, models.Message{Kind: models.MessageSystem})
	assert.True(t, errors.Is(err, models.ErrConflict))

	left, err := s.RemoveMember(c.ID, a.ID, models.Message{SenderID: a.ID, Kind: models.MessageSystem, Content: "alice left the group"})
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	_, err = s.RemoveMember(c.ID, a.ID, models.Message{Kind: models.MessageSystem})
	assert.True(t, errors.Is(err, models.ErrUnauthorized))

	msgs, err := s.ListMessages(c.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestLastMemberLeavingDeletesConversation(t *testing.T) {
	s, _ := storetest.Open(t, nil)
	a := storetest.User(t, s, "alice")
	c := group(t, s, a)
	m := send(t, s, c.ID, a.ID, "hello")
	_, err := s.ToggleReaction(m.ID, a.ID, "👍")
	require.NoError(t, err)
	require.NoError(t, s.SetTyping(c.ID, a.ID, true))
	_, err = s.InsertArtifact(models.Artifact{ConversationID: c.ID, UserID: a.ID, Type: models.ArtifactSummary, Content: "s"})
	require.NoError(t, err)

	left, err := s.RemoveMember(c.ID, a.ID, models.Message{SenderID: a.ID, Kind: models.MessageSystem, Content: "alice left the group"})
	require.NoError(t, err)
	assert.Zero(t, left)

	_, err = s.GetConversation(c.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	_, err = s.GetMessage(m.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	stats, err := s.Stats()
	require.NoError(t, err)
	for _, family := range []string{"conversations", "memberships", "messages", "reactions", "typing", "artifacts"} {
		assert.Zero(t, stats[family], family)
	}
	assert.Equal(t, 1, stats["users"])
}

func TestToggleReaction(t *testing.T) {
	s, _ := storetest.Open(t, nil)
	a := storetest.User(t, s, "alice")
	c := group(t, s, a)
	m := send(t, s, c.ID, a.ID, "hi")

	on, err := s.ToggleReaction(m.ID, a.ID, "❤️")
	require.NoError(t, err)
	assert.True(t, on)
	rs, err := s.ListReactions(m.ID)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "❤️", rs[0].Emoji)

	on, err = s.ToggleReaction(m.ID, a.ID, "❤️")
	require.NoError(t, err)
	assert.False(t, on)
	rs, err = s.ListReactions(m.ID)
	require.NoError(t, err)
	assert.Empty(t, rs)

	_, err = s.ToggleReaction("missing", a.ID, "❤️")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestTypingPrune(t *testing.T) {
	s, clock := storetest.Open(t, nil)
	a := storetest.User(t, s, "alice")
	b := storetest.User(t, s, "bob")
	c := group(t, s, a, b)

	require.NoError(t, s.SetTyping(c.ID, a.ID, true))
	clock.Advance(2 * time.Hour)
	require.NoError(t, s.SetTyping(c.ID, b.ID, true))

	cutoff := clock.Now().Add(-time.Hour).UnixNano()
	n, err := s.PruneTyping(cutoff, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	rows, err := s.ListTyping(c.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	n, err = s.PruneTyping(cutoff, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	rows, err = s.ListTyping(c.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, b.ID, rows[0].UserID)

	require.NoError(t, s.SetTyping(c.ID, b.ID, false))
	rows, err = s.ListTyping(c.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestArtifactsLatestAndPrune(t *testing.T) {
	s, clock := storetest.Open(t, nil)
	a := storetest.User(t, s, "alice")
	c := group(t, s, a)

	old, err := s.InsertArtifact(models.Artifact{ConversationID: c.ID, UserID: a.ID, Type: models.ArtifactSummary, Content: "old"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	newest, err := s.InsertArtifact(models.Artifact{ConversationID: c.ID, UserID: a.ID, Type: models.ArtifactSummary, Content: "new"})
	require.NoError(t, err)
	_, err = s.InsertArtifact(models.Artifact{ConversationID: c.ID, UserID: a.ID, Type: models.ArtifactReply, Content: "r"})
	require.NoError(t, err)

	got, ok, err := s.LatestArtifact(c.ID, a.ID, models.ArtifactSummary)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, newest.ID, got.ID)

	latest, err := s.LatestArtifacts(c.ID, a.ID)
	require.NoError(t, err)
	assert.Len(t, latest, 2)
	_, has := latest[models.ArtifactActions]
	assert.False(t, has)

	_, err = s.InsertArtifact(models.Artifact{ConversationID: c.ID, UserID: a.ID, Type: "poem"})
	assert.True(t, errors.Is(err, models.ErrInvalidArgument))

	clock.Advance(48 * time.Hour)
	n, err := s.PruneSupersededArtifacts(clock.Now().UnixNano(), 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok, err = s.LatestArtifact(c.ID, a.ID, models.ArtifactSummary)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, newest.ID, got.ID)
	assert.NotEqual(t, old.ID, got.ID)
	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats["artifacts"])
}

func TestWritesPublishTopics(t *testing.T) {
	rec := &storetest.Recorder{}
	s, _ := storetest.Open(t, rec)
	a := storetest.User(t, s, "alice")
	b := storetest.User(t, s, "bob")
	c := group(t, s, a, b)

	rec.Reset()
	send(t, s, c.ID, a.ID, "hi")
	assert.Contains(t, rec.Topics, live.MessagesTopic(c.ID))
	assert.Contains(t, rec.Topics, live.ConversationsTopic(b.ID))

	rec.Reset()
	_, err := s.SetPresence(b.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{live.PresenceTopic(b.ID)}, rec.Topics)

	rec.Reset()
	require.NoError(t, s.SetTyping(c.ID, a.ID, true))
	assert.Equal(t, []string{live.TypingTopic(c.ID)}, rec.Topics)
}

func TestWritesAfterPurgeFailNotFound(t *testing.T) {
	s, _ := storetest.Open(t, nil)
	a := storetest.User(t, s, "alice")
	c := group(t, s, a)
	m := send(t, s, c.ID, a.ID, "last words")

	_, err := s.InsertArtifact(models.Artifact{ConversationID: "missing", UserID: a.ID, Type: models.ArtifactSummary, Content: "s"})
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = s.RemoveMember(c.ID, a.ID, models.Message{SenderID: a.ID, Kind: models.MessageSystem, Content: "alice left the group"})
	require.NoError(t, err)

	_, err = s.InsertArtifact(models.Artifact{ConversationID: c.ID, UserID: a.ID, Type: models.ArtifactActions, Content: "1. ship"})
	assert.True(t, errors.Is(err, models.ErrNotFound))
	err = s.SetMessageEmbedding(m.ID, []float32{1, 0})
	assert.True(t, errors.Is(err, models.ErrNotFound))
	_, err = s.SoftDeleteMessage(m.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	_, err = s.ToggleReaction(m.ID, a.ID, "👍")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = s.GetMessage(m.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound), "purged message must not be recreated")
	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats["artifacts"])
	assert.Zero(t, stats["messages"])
}

func TestEmbeddingRacingPurgeLeavesNoMessage(t *testing.T) {
	s, _ := storetest.Open(t, nil)
	a := storetest.User(t, s, "alice")
	c := group(t, s, a)
	msgs := make([]models.Message, 20)
	for i := range msgs {
		msgs[i] = send(t, s, c.ID, a.ID, "m")
	}

	var wg sync.WaitGroup
	for _, m := range msgs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := s.SetMessageEmbedding(id, []float32{1})
			if err != nil {
				assert.True(t, errors.Is(err, models.ErrNotFound), err)
			}
		}(m.ID)
	}
	require.NoError(t, s.DeleteConversation(c.ID))
	wg.Wait()

	for _, m := range msgs {
		_, err := s.GetMessage(m.ID)
		assert.True(t, errors.Is(err, models.ErrNotFound))
	}
}
