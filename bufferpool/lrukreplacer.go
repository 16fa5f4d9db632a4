package bufferpool

import (
	"fmt"
	"sync"
)

// LRUKReplacer elects replacement victims by backward k-distance: the
// evictable frame whose k-th most recent access is furthest in the past is
// chosen. Frames with fewer than k recorded accesses have infinite distance;
// ties are broken by the oldest access in the window.
type LRUKReplacer struct {
	mu sync.Mutex

	k      int
	frames []frameNode
	// number of currently evictable frames
	currSize int
	// logical clock; incremented on every access
	timestamp uint64
}

type frameNode struct {
	// access timestamps, oldest first; at most k entries
	history   []uint64
	evictable bool
	present   bool
}

// NewLRUKReplacer instantiates a new LRU-K replacer over poolSize frames
func NewLRUKReplacer(poolSize int, k int) *LRUKReplacer {
	return &LRUKReplacer{
		k:      k,
		frames: make([]frameNode, poolSize),
	}
}

func (r *LRUKReplacer) checkFrame(frameID FrameID) {
	if frameID < 0 || int(frameID) >= len(r.frames) {
		panic(fmt.Sprintf("frame id %d out of range", frameID))
	}
}

// RecordAccess records an access to a frame at the current timestamp, keeping
// only the last k accesses. A frame seen for the first time starts evictable;
// the pool pins it immediately after.
func (r *LRUKReplacer) RecordAccess(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrame(frameID)

	r.timestamp++
	frame := &r.frames[frameID]
	if !frame.present {
		frame.present = true
		frame.evictable = true
		frame.history = append(frame.history[:0], r.timestamp)
		r.currSize++
		return
	}
	frame.history = append(frame.history, r.timestamp)
	if len(frame.history) > r.k {
		frame.history = frame.history[1:]
	}
}

// SetEvictable toggles whether a frame may be victimized. Repeated calls with
// the same value are no-ops; the evictable counter moves only on transitions.
func (r *LRUKReplacer) SetEvictable(frameID FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrame(frameID)

	frame := &r.frames[frameID]
	if !frame.present {
		return
	}
	if evictable && !frame.evictable {
		frame.evictable = true
		r.currSize++
	} else if !evictable && frame.evictable {
		frame.evictable = false
		r.currSize--
	}
}

// Evict removes and returns the evictable frame with the greatest backward
// k-distance. Returns false if no frame is evictable.
func (r *LRUKReplacer) Evict() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currSize == 0 {
		return FrameID(-1), false
	}

	victim := FrameID(-1)
	var victimDistance uint64
	var victimFront uint64
	for i := range r.frames {
		frame := &r.frames[i]
		if !frame.present || !frame.evictable {
			continue
		}
		front := frame.history[0]
		var distance uint64
		if len(frame.history) < r.k {
			distance = ^uint64(0)
		} else {
			distance = r.timestamp - front
		}
		if victim == FrameID(-1) || distance > victimDistance ||
			(distance == victimDistance && front < victimFront) {
			victim = FrameID(i)
			victimDistance = distance
			victimFront = front
		}
	}

	r.frames[victim] = frameNode{}
	r.currSize--
	return victim, true
}

// Remove forcibly clears an evictable frame. Clearing an absent or pinned
// frame is a no-op.
func (r *LRUKReplacer) Remove(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrame(frameID)

	frame := &r.frames[frameID]
	if !frame.present || !frame.evictable {
		return
	}
	r.frames[frameID] = frameNode{}
	r.currSize--
}

// Size returns the number of evictable frames
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}
