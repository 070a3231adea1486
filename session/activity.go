package session

import "context"

// The activity watcher drains the coarse-grained activity feed attached
// via WithActivitySource for the lifetime of a session. Each event stamps
// last-activity and rearms the idle deadline. Start is idempotent per
// session: a second start while the watcher is running does not spawn a
// duplicate drain goroutine.

func (s *Store) startWatcherLocked() {
	if s.activity == nil || s.watcherCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.watcherCancel = cancel

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-s.activity:
				if !ok {
					return
				}
				s.RecordActivity()
			}
		}
	}()
}

func (s *Store) stopWatcherLocked() {
	if s.watcherCancel != nil {
		s.watcherCancel()
		s.watcherCancel = nil
	}
}
