package store

import (
	"fmt"

	"github.com/yz174/kliq/pkg/live"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/store/keys"
)

// InsertArtifact appends an artifact. Artifacts are never updated; the
// newest one per (conversation, user, type) is the current one. It fails
// with ErrNotFound once the conversation is gone.
func (s *Store) InsertArtifact(a models.Artifact) (models.Artifact, error) {
	if !a.Type.Valid() {
		return models.Artifact{}, fmt.Errorf("artifact type %q: %w", a.Type, models.ErrInvalidArgument)
	}
	unlock := s.locks.lock("c:" + a.ConversationID)
	defer unlock()
	if _, err := s.GetConversation(a.ConversationID); err != nil {
		return models.Artifact{}, err
	}
	if a.ID == "" {
		a.ID = keys.NewID()
	}
	if a.CreatedTS == 0 {
		a.CreatedTS = s.now()
	}
	seq := s.artifactSeq.Add(1)
	key := keys.GenArtifactKey(a.ConversationID, a.UserID, string(a.Type), a.CreatedTS, seq)
	b := s.newBatch()
	if err := setJSON(b, key, a); err != nil {
		b.Close()
		return models.Artifact{}, err
	}
	if err := s.commit(b, live.ArtifactsTopic(a.ConversationID, a.UserID)); err != nil {
		return models.Artifact{}, err
	}
	return a, nil
}

// LatestArtifact returns the newest artifact of the given type for the
// requester, if any.
func (s *Store) LatestArtifact(convID, userID string, t models.ArtifactType) (models.Artifact, bool, error) {
	prefix := keys.GenArtifactTypePrefix(convID, userID, string(t))
	var (
		a     models.Artifact
		found bool
	)
	err := s.scanReverse([]byte(prefix), keys.UpperBound(prefix), func(_, v []byte) (bool, error) {
		found = true
		return false, decode(v, &a)
	})
	if err != nil {
		return models.Artifact{}, false, err
	}
	return a, found, nil
}

// LatestArtifacts returns the newest artifact per type for the requester.
func (s *Store) LatestArtifacts(convID, userID string) (map[models.ArtifactType]models.Artifact, error) {
	out := make(map[models.ArtifactType]models.Artifact, len(models.ArtifactTypes))
	for _, t := range models.ArtifactTypes {
		a, ok, err := s.LatestArtifact(convID, userID, t)
		if err != nil {
			return nil, err
		}
		if ok {
			out[t] = a
		}
	}
	return out, nil
}

// PruneSupersededArtifacts deletes artifacts created before cutoff that
// are no longer the newest of their (conversation, user, type) group. The
// newest artifact of a group is always kept regardless of age.
func (s *Store) PruneSupersededArtifacts(cutoff int64, limit int, dryRun bool) (int, error) {
	var (
		victims  [][]byte
		group    string
		previous []byte
		prevTS   int64
	)
	err := s.scanPrefix(keys.ArtifactAllPrefix, func(k, _ []byte) (bool, error) {
		parts, err := keys.ParseArtifactKey(string(k))
		if err != nil {
			return false, err
		}
		g := keys.GenArtifactTypePrefix(parts.ConversationID, parts.UserID, parts.Type)
		// previous is superseded when the next key shares its group
		if previous != nil && g == group && prevTS < cutoff {
			victims = append(victims, previous)
		}
		group = g
		previous = append([]byte(nil), k...)
		prevTS = parts.TS
		return limit <= 0 || len(victims) < limit, nil
	})
	if err != nil || dryRun || len(victims) == 0 {
		return len(victims), err
	}
	b := s.newBatch()
	for _, k := range victims {
		if err := b.Delete(k, nil); err != nil {
			b.Close()
			return 0, err
		}
	}
	if err := s.commit(b); err != nil {
		return 0, err
	}
	return len(victims), nil
}
