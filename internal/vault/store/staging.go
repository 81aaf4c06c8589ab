package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"treasury/pkg/platform/sentinel"
)

// Staging buffers writes over a base KV. Reads see staged values first. Set
// and Remove never touch the base; Commit applies the batch atomically and
// only if every base value read through the overlay is unchanged.
type Staging struct {
	base    KV
	pending map[string]Write
	reads   map[string]Read
}

func NewStaging(base KV) *Staging {
	return &Staging{
		base:    base,
		pending: make(map[string]Write),
		reads:   make(map[string]Read),
	}
}

func (s *Staging) Get(ctx context.Context, key string) ([]byte, error) {
	if w, ok := s.pending[key]; ok {
		if w.Delete {
			return nil, sentinel.ErrNotFound
		}
		return slices.Clone(w.Value), nil
	}
	v, err := s.base.Get(ctx, key)
	switch {
	case err == nil:
		s.observe(Read{Key: key, Value: slices.Clone(v)})
	case errors.Is(err, sentinel.ErrNotFound):
		s.observe(Read{Key: key, Missing: true})
	}
	return v, err
}

// observe keeps the first value seen for a key.
func (s *Staging) observe(r Read) {
	if _, seen := s.reads[r.Key]; !seen {
		s.reads[r.Key] = r
	}
}

func (s *Staging) Set(_ context.Context, key string, value []byte) error {
	s.pending[key] = Write{Key: key, Value: slices.Clone(value)}
	return nil
}

func (s *Staging) Remove(_ context.Context, key string) error {
	s.pending[key] = Write{Key: key, Delete: true}
	return nil
}

// Apply stages writes after checking reads against the overlay; it does not
// commit.
func (s *Staging) Apply(ctx context.Context, writes []Write, reads ...Read) error {
	for _, r := range reads {
		v, err := s.Get(ctx, r.Key)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		if !r.Holds(v, err == nil) {
			return fmt.Errorf("%s changed: %w", r.Key, sentinel.ErrConflict)
		}
	}
	for _, w := range writes {
		var err error
		if w.Delete {
			err = s.Remove(ctx, w.Key)
		} else {
			err = s.Set(ctx, w.Key, w.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Writes returns the staged batch in key order.
func (s *Staging) Writes() []Write {
	out := make([]Write, 0, len(s.pending))
	for _, w := range s.pending {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Reads returns the base values the overlay observed, in key order.
func (s *Staging) Reads() []Read {
	out := make([]Read, 0, len(s.reads))
	for _, r := range s.reads {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Dirty reports whether anything is staged.
func (s *Staging) Dirty() bool {
	return len(s.pending) > 0
}

// Commit applies the staged batch to the base and clears the overlay. It
// returns sentinel.ErrConflict when a value read through the overlay changed
// in the base since.
func (s *Staging) Commit(ctx context.Context) error {
	if !s.Dirty() {
		return nil
	}
	if err := s.base.Apply(ctx, s.Writes(), s.Reads()...); err != nil {
		return err
	}
	s.Discard()
	return nil
}

// Discard drops every staged write and observed read.
func (s *Staging) Discard() {
	clear(s.pending)
	clear(s.reads)
}

// IsNotFound reports whether err means the key is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound)
}

// IsConflict reports whether err means a concurrent writer won the commit.
func IsConflict(err error) bool {
	return errors.Is(err, sentinel.ErrConflict)
}
