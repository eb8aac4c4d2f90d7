package scheduler

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hookwatch/hookwatch/errors"
)

// LeaderLock designates exactly one process as the scheduling leader.
//
// Acquisition failure is not an error: it is the expected steady state for
// every replica but one. Non-holders keep serving the API and periodically
// retry acquisition so a dead leader is eventually replaced.
type LeaderLock interface {
	// TryAcquire attempts to take the lock without blocking and reports
	// whether this process is now the leader.
	TryAcquire() (bool, error)
	// Release gives the lock up. Idempotent.
	Release()
	// IsHeld reports whether this process currently holds the lock.
	IsHeld() bool
}

// lockState is the metadata written into the lock file. The heartbeat
// timestamp is what lets a successor detect that the holder died without
// releasing.
type lockState struct {
	HolderID    string    `json:"holder_id"`
	PID         int       `json:"pid"`
	Hostname    string    `json:"hostname"`
	AcquiredAt  time.Time `json:"acquired_at"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
}

// FileLock is a file-based LeaderLock for single-host or shared-volume
// deployments. While held, a background goroutine refreshes the heartbeat;
// a lock whose heartbeat is older than staleAfter may be reclaimed.
type FileLock struct {
	path       string
	staleAfter time.Duration
	log        *zap.SugaredLogger

	// holderID distinguishes this process's lock instance so Release never
	// deletes a file a successor has already reclaimed.
	holderID string

	mu            sync.Mutex
	held          bool
	stopHeartbeat chan struct{}
	heartbeatDone chan struct{}
}

// NewFileLock creates a file lock at path with the given staleness threshold.
func NewFileLock(path string, staleAfter time.Duration, log *zap.SugaredLogger) *FileLock {
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	return &FileLock{
		path:       path,
		staleAfter: staleAfter,
		log:        log,
		holderID:   uuid.NewString(),
	}
}

// TryAcquire attempts to create the lock file exclusively. If the file
// exists but its heartbeat is stale, the lock is reclaimed.
func (l *FileLock) TryAcquire() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return true, nil
	}

	ok, err := l.tryCreate()
	if err != nil {
		return false, err
	}
	if !ok {
		reclaimed, err := l.tryReclaimStale()
		if err != nil || !reclaimed {
			return false, err
		}
	}

	l.held = true
	l.stopHeartbeat = make(chan struct{})
	l.heartbeatDone = make(chan struct{})
	go l.heartbeatLoop(l.stopHeartbeat, l.heartbeatDone)

	l.log.Infow("Leadership lock acquired", "path", l.path, "pid", os.Getpid())
	return true, nil
}

// Release gives the lock up and removes the file if this process still owns
// it. Safe to call repeatedly and on a lock that was never acquired.
func (l *FileLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}
	close(l.stopHeartbeat)
	<-l.heartbeatDone
	l.held = false

	// Only delete a file we still own: a successor may have reclaimed a
	// stale lock while we were paused.
	state, err := l.readState()
	if err == nil && state.HolderID == l.holderID {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			l.log.Warnw("Failed to remove lock file", "path", l.path, "error", err)
		}
	}
	l.log.Infow("Leadership lock released", "path", l.path)
}

// IsHeld reports whether this process currently holds the lock.
func (l *FileLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// tryCreate attempts an exclusive create. Returns false (no error) if the
// file already exists.
func (l *FileLock) tryCreate() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to create lock file %s", l.path)
	}
	defer f.Close()

	now := time.Now()
	state := lockState{
		HolderID:    l.holderID,
		PID:         os.Getpid(),
		Hostname:    hostname(),
		AcquiredAt:  now,
		HeartbeatAt: now,
	}
	if err := json.NewEncoder(f).Encode(state); err != nil {
		os.Remove(l.path)
		return false, errors.Wrap(err, "failed to write lock state")
	}
	return true, nil
}

// tryReclaimStale claims the lock file if its heartbeat exceeds the
// staleness threshold, then retries the exclusive create. Losing the
// create race to another contender is a normal outcome.
func (l *FileLock) tryReclaimStale() (bool, error) {
	state, err := l.readState()
	if err != nil {
		// Unreadable lock files (partial write from a crashed holder) are
		// treated as stale once they stop changing; here we just report
		// not-acquired and let a later attempt decide.
		l.log.Warnw("Unreadable lock file", "path", l.path, "error", err)
		return false, nil
	}

	age := time.Since(state.HeartbeatAt)
	if age < l.staleAfter {
		return false, nil
	}

	l.log.Warnw("Reclaiming stale leadership lock",
		"path", l.path,
		"previous_pid", state.PID,
		"previous_host", state.Hostname,
		"heartbeat_age", age.Round(time.Second))

	return l.claimStale(state)
}

// claimStale takes possession of the lock file whose contents matched
// stale. The file is renamed aside rather than removed: rename is atomic,
// so when several standbys race to reclaim the same stale lock only one of
// them moves it, and a fresh lock written at the path in the meantime is
// detected by the re-read and put back instead of destroyed. Removing in
// place would let a slow contender delete the winner's fresh lock.
func (l *FileLock) claimStale(stale *lockState) (bool, error) {
	claim := l.path + ".claim." + l.holderID
	if err := os.Rename(l.path, claim); err != nil {
		if os.IsNotExist(err) {
			// Another contender moved it first; contend for the empty
			// slot normally.
			return l.tryCreate()
		}
		return false, errors.Wrapf(err, "failed to claim stale lock file %s", l.path)
	}

	got, err := l.readStateFrom(claim)
	if err == nil && (got.HolderID != stale.HolderID || !got.HeartbeatAt.Equal(stale.HeartbeatAt)) {
		// The file changed between inspection and the rename: someone
		// already reclaimed and this grabbed their live lock. Put it back
		// without clobbering anything created since (link fails if the
		// path is occupied again).
		if lerr := os.Link(claim, l.path); lerr != nil && !os.IsExist(lerr) {
			l.log.Warnw("Failed to restore reclaimed lock file", "path", l.path, "error", lerr)
		}
		os.Remove(claim)
		return false, nil
	}

	os.Remove(claim)
	return l.tryCreate()
}

func (l *FileLock) heartbeatLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.staleAfter / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := l.writeHeartbeat(); err != nil {
				l.log.Warnw("Failed to refresh lock heartbeat", "path", l.path, "error", err)
			}
		}
	}
}

// writeHeartbeat refreshes HeartbeatAt via write-to-temp + rename so readers
// never observe a partially written lock file.
func (l *FileLock) writeHeartbeat() error {
	state, err := l.readState()
	if err != nil {
		return err
	}
	if state.HolderID != l.holderID {
		return errors.New("lock file no longer owned by this process")
	}

	state.HeartbeatAt = time.Now()
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

func (l *FileLock) readState() (*lockState, error) {
	return l.readStateFrom(l.path)
}

func (l *FileLock) readStateFrom(path string) (*lockState, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state lockState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "failed to parse lock state")
	}
	return &state, nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
