package gateway

import "sync"

// replayLog keeps the most recent broadcast frames so a reconnecting
// observer can backfill the gap since the last sequence number it saw.
// The hub assigns sequence numbers contiguously, so a frame is addressed
// by its offset from the oldest retained seq instead of by scanning.
type replayLog struct {
	mu     sync.RWMutex
	frames [][]byte
	first  int64 // seq of frames[0]; meaningless while empty
	max    int
}

func newReplayLog(max int) *replayLog {
	if max <= 0 {
		max = 512
	}
	return &replayLog{max: max}
}

// push records the frame for the next contiguous sequence number. The
// frame is copied; the oldest entries fall off past the retention cap.
func (l *replayLog) push(seq int64, frame []byte) {
	cp := make([]byte, len(frame))
	copy(cp, frame)

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.frames) == 0 {
		l.first = seq
	}
	l.frames = append(l.frames, cp)
	if over := len(l.frames) - l.max; over > 0 {
		l.frames = l.frames[over:]
		l.first += int64(over)
	}
}

// since returns the retained frames with seq > fromSeq, oldest first.
func (l *replayLog) since(fromSeq int64) [][]byte {
	l.mu.RLock()
	defer l.mu.RUnlock()

	startSeq := fromSeq + 1
	if startSeq < l.first {
		startSeq = l.first
	}
	idx := int(startSeq - l.first)
	if idx < 0 || idx >= len(l.frames) {
		return nil
	}
	out := make([][]byte, len(l.frames)-idx)
	copy(out, l.frames[idx:])
	return out
}

// size reports how many frames are retained.
func (l *replayLog) size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.frames)
}
