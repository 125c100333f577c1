package cache

// lru tracks key recency with a doubly linked list. Head is the most
// recently used key, tail the least.
type lru struct {
	nodes map[string]*lruNode
	head  *lruNode
	tail  *lruNode
}

type lruNode struct {
	key  string
	prev *lruNode
	next *lruNode
}

func newLRU() *lru {
	return &lru{nodes: make(map[string]*lruNode)}
}

func (l *lru) touch(key string) {
	if n, ok := l.nodes[key]; ok {
		l.unlink(n)
		l.pushFront(n)
		return
	}
	n := &lruNode{key: key}
	l.nodes[key] = n
	l.pushFront(n)
}

func (l *lru) remove(key string) {
	if n, ok := l.nodes[key]; ok {
		l.unlink(n)
		delete(l.nodes, key)
	}
}

// evict drops and returns the least recently used key.
func (l *lru) evict() (string, bool) {
	if l.tail == nil {
		return "", false
	}
	key := l.tail.key
	l.unlink(l.tail)
	delete(l.nodes, key)
	return key, true
}

func (l *lru) len() int {
	return len(l.nodes)
}

func (l *lru) pushFront(n *lruNode) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
}

func (l *lru) unlink(n *lruNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}
