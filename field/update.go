package field

import "sync/atomic"

// Update is an open step: the scratch buffer is writable and the current
// buffer is readable through Current. Nothing written becomes visible to
// readers until Commit.
type Update[T any] struct {
	f      *Field[T]
	cur    View[T]
	next   []T
	target Buffer
	done   atomic.Bool
}

// BeginUpdate opens a step. Only one update may be open at a time.
func (f *Field[T]) BeginUpdate() (*Update[T], error) {
	f.umu.Lock()
	defer f.umu.Unlock()
	if f.open != nil {
		return nil, ErrUpdateInProgress
	}
	scratch := f.active.Other()
	u := &Update[T]{
		f:      f,
		cur:    f.view(f.active),
		next:   f.bufs[scratch],
		target: scratch,
	}
	f.open = u
	return u, nil
}

// Current returns the buffer the step reads from.
func (u *Update[T]) Current() View[T] { return u.cur }

// Target reports which buffer the step writes into.
func (u *Update[T]) Target() Buffer { return u.target }

// Set writes v into the scratch buffer at (x, y).
func (u *Update[T]) Set(x, y int, v T) error {
	if u.done.Load() {
		return ErrStaleUpdate
	}
	if err := u.f.geom.Check(x, y); err != nil {
		return err
	}
	u.next[y*u.cur.w+x] = v
	return nil
}

// Apply computes every cell with rule.
func (u *Update[T]) Apply(rule Rule[T]) error {
	return u.ApplyRows(rule, 0, u.cur.h)
}

// ApplyRows computes rows [y0, y1) with rule. Calls for disjoint row ranges
// may run concurrently.
func (u *Update[T]) ApplyRows(rule Rule[T], y0, y1 int) error {
	if u.done.Load() {
		return ErrStaleUpdate
	}
	if y0 < 0 || y1 > u.cur.h || y0 > y1 {
		return ErrRowRange
	}
	u.applyRows(rule, y0, y1)
	return nil
}

func (u *Update[T]) applyRows(rule Rule[T], y0, y1 int) {
	w := u.cur.w
	for y := y0; y < y1; y++ {
		row := u.next[y*w : (y+1)*w]
		for x := range row {
			row[x] = rule(u.cur, x, y)
		}
	}
}

// Commit makes the scratch buffer current. The previous current buffer
// becomes scratch for the next step. Every writer must have finished before
// Commit is called.
func (u *Update[T]) Commit() error {
	if !u.done.CompareAndSwap(false, true) {
		return ErrStaleUpdate
	}
	f := u.f
	f.mu.Lock()
	f.active = u.target
	f.mu.Unlock()
	u.release()
	return nil
}

// Abort abandons the step. The current buffer is unchanged.
func (u *Update[T]) Abort() {
	if u.done.CompareAndSwap(false, true) {
		u.release()
	}
}

func (u *Update[T]) release() {
	u.f.umu.Lock()
	if u.f.open == u {
		u.f.open = nil
	}
	u.f.umu.Unlock()
}
