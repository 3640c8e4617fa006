package liveness

import (
	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
)

// TrySteal moves part of victim's queued work into s, then drains and
// reports. Nothing is taken unless the victim holds at least 2*minSteal
// queued objects; otherwise clamp(queued/workers, minSteal, MaxStealCount)
// objects move. It returns the number of objects stolen.
//
// Only the victim's shared queue is touched, and the two queue locks are
// never held together.
func (s *Session) TrySteal(victim *Session, workers, minSteal int) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if err := victim.checkOpen(); err != nil {
		return 0, err
	}
	if victim == s {
		return 0, apperrors.New(apperrors.CodeInvalidInput, "session cannot steal from itself")
	}
	if workers < 1 {
		return 0, apperrors.Newf(apperrors.CodeInvalidInput, "invalid worker count %d", workers)
	}

	stolen, err := s.stealFrom(victim, workers, minSteal)
	s.stats.Stolen += int64(stolen)
	if err != nil || stolen == 0 {
		return stolen, err
	}
	return stolen, s.DrainAndReport()
}

// stealFrom moves work from victim's queue into s's queue without draining.
func (s *Session) stealFrom(victim *Session, workers, minSteal int) (int, error) {
	if minSteal < 1 {
		minSteal = 1
	}

	q := victim.queue
	q.Lock()
	queued := q.CountNoLock()
	if queued == 0 || queued < 2*minSteal {
		q.Unlock()
		return 0, nil
	}
	want := queued / workers
	if want < minSteal {
		want = minSteal
	}
	if want > MaxStealCount {
		want = MaxStealCount
	}
	n := 0
	for n < want {
		obj, ok := q.PopNoLock()
		if !ok {
			break
		}
		s.stealBuf[n] = obj
		n++
	}
	q.Unlock()

	s.queue.Lock()
	for i := 0; i < n; i++ {
		if err := s.queue.PushNoLock(s.stealBuf[i]); err != nil {
			s.queue.Unlock()
			// The victim's blocks are still allocated, so handing the rest
			// back cannot fail.
			q.Lock()
			for j := n - 1; j >= i; j-- {
				_ = q.PushNoLock(s.stealBuf[j])
			}
			q.Unlock()
			return i, err
		}
	}
	s.queue.Unlock()
	return n, nil
}
