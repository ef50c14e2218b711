// Package ledger owns the authoritative point balance and the denormalized
// group cache that shadows it.
//
// Apply mutates User.Points in a single atomic transaction — that part is
// always immediately correct. The per-group member lists are a cache fanned
// out afterwards by a background worker, so a reader who hits a Group before
// propagation lands can transiently see a stale number. Propagation writes
// the absolute new total (never a delta), which makes repeated or reordered
// attempts converge on the same value, and it retries each group until the
// write sticks.
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/snipetag/internal/metrics"
	"github.com/sakif/snipetag/internal/model"
	"github.com/sakif/snipetag/internal/notify"
	"github.com/sakif/snipetag/internal/repository"
)

const (
	queueSize       = 256
	maxPropagations = 5
	propagateWait   = 100 * time.Millisecond
)

// job is one propagation task: push an absolute total into every group.
type job struct {
	userID   string
	points   int
	groupIDs []string
	attempt  int
}

// Ledger applies point deltas and keeps group caches converging.
type Ledger struct {
	users  repository.UserRepository
	groups repository.GroupRepository
	bus    *notify.Bus
	logger *slog.Logger

	jobs      chan job
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a Ledger. Call Start to launch the fan-out worker.
func New(users repository.UserRepository, groups repository.GroupRepository, bus *notify.Bus, logger *slog.Logger) *Ledger {
	return &Ledger{
		users:  users,
		groups: groups,
		bus:    bus,
		logger: logger,
		jobs:   make(chan job, queueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the background fan-out worker.
func (l *Ledger) Start() {
	l.startOnce.Do(func() {
		l.wg.Add(1)
		go l.worker()
	})
}

// Stop drains no further jobs and waits for the worker to exit.
func (l *Ledger) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		l.wg.Wait()
	})
}

// Apply atomically adds delta to the user's balance, publishes the change,
// and queues cache propagation to every group the user belongs to. The
// returned value is the committed new total. Balances may go negative;
// nothing here clamps.
func (l *Ledger) Apply(ctx context.Context, userID string, delta int) (int, error) {
	user, err := l.users.Mutate(ctx, userID, func(u *model.User) error {
		u.Points += delta
		return nil
	})
	if err != nil {
		return 0, err
	}

	l.logger.Info("points applied",
		slog.String("userId", userID),
		slog.Int("delta", delta),
		slog.Int("total", user.Points),
	)

	l.bus.Publish(notify.CollectionUsers, userID)
	l.Propagate(userID, user.Points, user.GroupIDs)
	return user.Points, nil
}

// Propagate queues a cache fan-out for an already-committed balance. Callers
// that mutate points inside their own transaction (purchases) use this
// directly instead of Apply.
func (l *Ledger) Propagate(userID string, points int, groupIDs []string) {
	if len(groupIDs) == 0 {
		return
	}
	l.enqueue(job{userID: userID, points: points, groupIDs: groupIDs})
}

func (l *Ledger) enqueue(j job) {
	select {
	case l.jobs <- j:
		metrics.FanoutDepth.Set(float64(len(l.jobs)))
	case <-l.done:
	}
}

// worker drains propagation jobs until Stop. One job at a time keeps the
// per-user ordering sane: a later absolute total can only be re-applied, not
// interleaved into a wrong final state.
func (l *Ledger) worker() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			// Best-effort drain so committed balances still reach the caches.
			for {
				select {
				case j := <-l.jobs:
					l.propagate(j)
				default:
					return
				}
			}
		case j := <-l.jobs:
			metrics.FanoutDepth.Set(float64(len(l.jobs)))
			l.propagate(j)
		}
	}
}

// propagate writes the absolute total into every group's member cache.
// Groups that fail are retried as a smaller follow-up job with backoff;
// after maxPropagations the failure is logged and dropped — the User record
// stays correct and the next balance change will converge the cache.
func (l *Ledger) propagate(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var failed []string
	for _, groupID := range j.groupIDs {
		_, err := l.groups.Mutate(ctx, groupID, func(g *model.Group) error {
			idx := g.MemberIndex(j.userID)
			if idx < 0 {
				// User left the group since the job was queued; nothing to sync.
				return nil
			}
			g.Members[idx].Points = j.points
			return nil
		})
		if err != nil {
			l.logger.Warn("group cache propagation failed",
				slog.String("userId", j.userID),
				slog.String("groupId", groupID),
				slog.Int("attempt", j.attempt+1),
				slog.String("error", err.Error()),
			)
			failed = append(failed, groupID)
			continue
		}
		l.bus.Publish(notify.CollectionGroups, groupID)
	}

	if len(failed) == 0 {
		return
	}

	metrics.FanoutRetries.Inc()
	if j.attempt+1 >= maxPropagations {
		l.logger.Error("giving up on group cache propagation",
			slog.String("userId", j.userID),
			slog.Int("groups", len(failed)),
		)
		return
	}

	retry := job{userID: j.userID, points: j.points, groupIDs: failed, attempt: j.attempt + 1}
	go func() {
		select {
		case <-time.After(propagateWait * time.Duration(retry.attempt)):
			l.enqueue(retry)
		case <-l.done:
		}
	}()
}
