package store

// SliceRows serves a pre-built slice through the Rows interface.
type SliceRows[T any] struct {
	items []T
	pos   int
	err   error
}

// NewSliceRows returns an iterator over items. If err is non-nil it is
// reported by Err once the items are exhausted.
func NewSliceRows[T any](items []T, err error) *SliceRows[T] {
	return &SliceRows[T]{items: items, pos: -1, err: err}
}

func (r *SliceRows[T]) Next() bool {
	if r.pos+1 >= len(r.items) {
		r.pos = len(r.items)
		return false
	}
	r.pos++
	return true
}

func (r *SliceRows[T]) Value() T {
	return r.items[r.pos]
}

func (r *SliceRows[T]) Err() error {
	if r.pos >= len(r.items) {
		return r.err
	}
	return nil
}

func (r *SliceRows[T]) Close() error {
	return nil
}

// Collect drains rows into a slice and closes them.
func Collect[T any](rows Rows[T]) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		out = append(out, rows.Value())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
