package store

import (
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/store/keys"
)

// PendingJobs returns up to limit persisted jobs, oldest first.
func (s *Store) PendingJobs(limit int) ([]models.Job, error) {
	var out []models.Job
	err := s.scanPrefix(keys.JobPrefix, func(_, v []byte) (bool, error) {
		var j models.Job
		if err := decode(v, &j); err != nil {
			return false, err
		}
		out = append(out, j)
		return limit <= 0 || len(out) < limit, nil
	})
	return out, err
}

// DeleteJob removes a finished job. Deleting a missing job is not an error.
func (s *Store) DeleteJob(seq uint64) error {
	b := s.newBatch()
	if err := b.Delete([]byte(keys.GenJobKey(seq)), nil); err != nil {
		b.Close()
		return err
	}
	return s.commit(b)
}

func (s *Store) lastJobSeq() (uint64, error) {
	var last uint64
	err := s.scanReverse([]byte(keys.JobPrefix), keys.UpperBound(keys.JobPrefix), func(k, _ []byte) (bool, error) {
		seq, err := keys.ParseJobKey(string(k))
		if err != nil {
			return false, err
		}
		last = seq
		return false, nil
	})
	return last, err
}

func (s *Store) HasJob(seq uint64) (bool, error) {
	return s.has(keys.GenJobKey(seq))
}
