package retention

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/timeutil"
)

var errNotOwner = errors.New("lease held by another owner")

// fileLease is a cross-process lock with an expiry, so two servers sharing
// a state directory never prune at the same time.
type fileLease struct {
	path  string
	clock timeutil.Clock
}

type leaseFile struct {
	Owner   string `json:"owner"`
	Expires string `json:"expires"`
}

func newFileLease(dir string, clock timeutil.Clock) *fileLease {
	return &fileLease{path: filepath.Join(dir, "retention.lock"), clock: timeutil.Or(clock)}
}

func (l *fileLease) write(path string, lf leaseFile) error {
	b, err := json.Marshal(lf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func (l *fileLease) read() (leaseFile, error) {
	var lf leaseFile
	data, err := os.ReadFile(l.path)
	if err != nil {
		return lf, err
	}
	if err := json.Unmarshal(data, &lf); err != nil {
		return lf, fmt.Errorf("corrupt lease file %s: %w", l.path, err)
	}
	return lf, nil
}

// Acquire takes the lease for ttl. It reports false without error when a
// live lease is held by someone else.
func (l *fileLease) Acquire(owner string, ttl time.Duration) (bool, error) {
	now := l.clock.Now()
	tmp := l.path + "." + owner + ".tmp"
	if err := l.write(tmp, leaseFile{Owner: owner, Expires: now.Add(ttl).Format(time.RFC3339Nano)}); err != nil {
		logger.Error("lease_tmp_write_failed", "path", tmp, "error", err)
		return false, err
	}
	defer os.Remove(tmp)

	// link fails if the lock exists
	if err := os.Link(tmp, l.path); err == nil {
		logger.Debug("lease_acquired", "path", l.path, "owner", owner)
		return true, nil
	}
	existing, err := l.read()
	if err != nil {
		return false, err
	}
	exp, err := time.Parse(time.RFC3339Nano, existing.Expires)
	if err == nil && exp.After(now) {
		logger.Info("lease_currently_held", "path", l.path, "owner", existing.Owner)
		return false, nil
	}
	if err := os.Rename(tmp, l.path); err != nil {
		logger.Error("lease_replace_failed", "path", l.path, "error", err)
		return false, err
	}
	logger.Info("lease_acquired_replaced", "path", l.path, "owner", owner, "previous", existing.Owner)
	return true, nil
}

// Renew extends a lease this owner holds.
func (l *fileLease) Renew(owner string, ttl time.Duration) error {
	existing, err := l.read()
	if err != nil {
		return err
	}
	if existing.Owner != owner {
		return errNotOwner
	}
	existing.Expires = l.clock.Now().Add(ttl).Format(time.RFC3339Nano)
	tmp := l.path + "." + owner + ".tmp"
	if err := l.write(tmp, existing); err != nil {
		return err
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (l *fileLease) Release(owner string) error {
	existing, err := l.read()
	if err != nil {
		return err
	}
	if existing.Owner != owner {
		logger.Error("lease_release_not_owner", "owner", owner, "holder", existing.Owner)
		return errNotOwner
	}
	return os.Remove(l.path)
}
