// Package linkedlist implements a circular doubly-linked list stored as
// individual KV entries. Each collection key owns one list: the node keyed by
// (key, nil) is the sentinel, and the node keyed by (key, &member) exists
// exactly when member belongs to the collection. Append and Remove touch a
// constant number of entries regardless of list length.
package linkedlist

import (
	"errors"
	"fmt"

	"unitledger/internal/kv"
	"unitledger/pkg/domain"
)

// DefaultWalkLimit bounds enumeration when no limit is configured.
const DefaultWalkLimit = 1 << 20

// List is the typed list primitive over one bucket.
type List[K any, V comparable] struct {
	nodes kv.Map[kv.Pair[K, *V], domain.LinkedItem[V]]
	limit int
}

// Option configures a List.
type Option func(*options)

type options struct {
	limit int
}

// WithWalkLimit caps the number of hops an enumeration may take before it
// reports ErrCorruptList.
func WithWalkLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.limit = n
		}
	}
}

// New builds a list stored in bucket using the given key and member codecs.
func New[K any, V comparable](bucket domain.Bucket, keys kv.Codec[K], members kv.Codec[V], opts ...Option) *List[K, V] {
	o := options{limit: DefaultWalkLimit}
	for _, opt := range opts {
		opt(&o)
	}
	codec := kv.Tuple[K, *V]{First: keys, Second: kv.Optional[V]{Inner: members}}
	return &List[K, V]{
		nodes: kv.NewMap[kv.Pair[K, *V], domain.LinkedItem[V]](bucket, codec, kv.JSON[domain.LinkedItem[V]]{}),
		limit: o.limit,
	}
}

// Bucket returns the namespace holding the nodes.
func (l *List[K, V]) Bucket() domain.Bucket { return l.nodes.Bucket() }

func (l *List[K, V]) read(view domain.TransactionView, key K, member *V) (domain.LinkedItem[V], bool, error) {
	return l.nodes.Get(view, kv.PairOf(key, member))
}

func (l *List[K, V]) write(tx domain.Transaction, key K, member *V, item domain.LinkedItem[V]) error {
	if member == nil && item.Prev == nil && item.Next == nil {
		// an empty sentinel is stored as absence
		return l.nodes.Delete(tx, kv.PairOf[K, *V](key, nil))
	}
	return l.nodes.Put(tx, kv.PairOf(key, member), item)
}

// Head returns the sentinel node; an empty list reads as {nil, nil}.
func (l *List[K, V]) Head(view domain.TransactionView, key K) (domain.LinkedItem[V], error) {
	head, _, err := l.read(view, key, nil)
	return head, err
}

// Node returns the node stored for member.
func (l *List[K, V]) Node(view domain.TransactionView, key K, member V) (domain.LinkedItem[V], bool, error) {
	return l.read(view, key, &member)
}

// Append adds member at the tail. The caller guarantees member is not
// already present; a duplicate append corrupts the list.
func (l *List[K, V]) Append(tx domain.Transaction, key K, member V) error {
	head, _, err := l.read(tx, key, nil)
	if err != nil {
		return fmt.Errorf("read sentinel: %w", err)
	}
	m := member
	if head.Next == nil {
		head.Next = &m
		head.Prev = &m
		if err := l.write(tx, key, nil, head); err != nil {
			return err
		}
		return l.write(tx, key, &m, domain.LinkedItem[V]{})
	}

	if head.Prev == nil {
		return fmt.Errorf("%w: sentinel has no tail", domain.ErrCorruptList)
	}
	tailID := *head.Prev
	tail, ok, err := l.read(tx, key, &tailID)
	if err != nil {
		return fmt.Errorf("read tail: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: tail node missing", domain.ErrCorruptList)
	}
	node := domain.LinkedItem[V]{Prev: &tailID, Next: tail.Next}
	tail.Next = &m
	head.Prev = &m
	if err := l.write(tx, key, nil, head); err != nil {
		return err
	}
	if err := l.write(tx, key, &tailID, tail); err != nil {
		return err
	}
	return l.write(tx, key, &m, node)
}

// Remove unlinks member. Removing a member that has no node is a no-op;
// callers that need to tell the cases apart check Contains first.
func (l *List[K, V]) Remove(tx domain.Transaction, key K, member V) error {
	node, ok, err := l.read(tx, key, &member)
	if err != nil {
		return fmt.Errorf("read member: %w", err)
	}
	if !ok {
		return nil
	}

	// The successor is read after the predecessor is written: in a one-member
	// list both are the sentinel and the second update must see the first.
	prev, found, err := l.read(tx, key, node.Prev)
	if err != nil {
		return fmt.Errorf("read predecessor: %w", err)
	}
	if node.Prev != nil && !found {
		return fmt.Errorf("%w: predecessor of removed member missing", domain.ErrCorruptList)
	}
	prev.Next = node.Next
	if err := l.write(tx, key, node.Prev, prev); err != nil {
		return err
	}

	next, found, err := l.read(tx, key, node.Next)
	if err != nil {
		return fmt.Errorf("read successor: %w", err)
	}
	if node.Next != nil && !found {
		return fmt.Errorf("%w: successor of removed member missing", domain.ErrCorruptList)
	}
	next.Prev = node.Prev
	if err := l.write(tx, key, node.Next, next); err != nil {
		return err
	}
	return l.nodes.Delete(tx, kv.PairOf(key, &member))
}

// Contains reports whether member has a node under key.
func (l *List[K, V]) Contains(view domain.TransactionView, key K, member V) (bool, error) {
	return l.nodes.Has(view, kv.PairOf(key, &member))
}

// ErrStop ends a walk early without reporting an error.
var ErrStop = errors.New("stop walk")

// Walk calls fn for each member from first to last.
func (l *List[K, V]) Walk(view domain.TransactionView, key K, fn func(V) error) error {
	return l.walk(view, key, true, fn)
}

// WalkBackward calls fn for each member from last to first.
func (l *List[K, V]) WalkBackward(view domain.TransactionView, key K, fn func(V) error) error {
	return l.walk(view, key, false, fn)
}

func (l *List[K, V]) walk(view domain.TransactionView, key K, forward bool, fn func(V) error) error {
	head, err := l.Head(view, key)
	if err != nil {
		return fmt.Errorf("read sentinel: %w", err)
	}
	step := func(item domain.LinkedItem[V]) *V {
		if forward {
			return item.Next
		}
		return item.Prev
	}
	cur := step(head)
	for hops := 0; cur != nil; hops++ {
		if hops >= l.limit {
			return fmt.Errorf("%w: walk exceeded %d hops", domain.ErrCorruptList, l.limit)
		}
		member := *cur
		node, ok, err := l.read(view, key, &member)
		if err != nil {
			return fmt.Errorf("read member: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: dangling link to missing member", domain.ErrCorruptList)
		}
		if err := fn(member); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
		cur = step(node)
	}
	return nil
}

// Members returns every member in insertion order.
func (l *List[K, V]) Members(view domain.TransactionView, key K) ([]V, error) {
	var out []V
	err := l.Walk(view, key, func(v V) error {
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Len counts the members by walking the list.
func (l *List[K, V]) Len(view domain.TransactionView, key K) (int, error) {
	n := 0
	err := l.Walk(view, key, func(V) error {
		n++
		return nil
	})
	return n, err
}
