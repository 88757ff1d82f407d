package store

type OpKind uint8

const (
	PutOp OpKind = iota
	DeleteOp
)

func (k OpKind) String() string {
	switch k {
	case PutOp:
		return "put"
	case DeleteOp:
		return "delete"
	default:
		return "unknown"
	}
}

type Op struct {
	Kind      OpKind
	Namespace string
	Key       []byte
	Value     []byte
}

// Batch collects writes that are applied atomically by Writer.WriteBatch.
// Operations are applied in insertion order, a later write to the same key wins.
type Batch struct {
	ops  []Op
	size int
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Put(namespace string, key, value []byte) {
	b.ops = append(b.ops, Op{Kind: PutOp, Namespace: namespace, Key: key, Value: value})
	b.size += len(namespace) + len(key) + len(value)
}

func (b *Batch) Delete(namespace string, key []byte) {
	b.ops = append(b.ops, Op{Kind: DeleteOp, Namespace: namespace, Key: key})
	b.size += len(namespace) + len(key)
}

// Append moves every operation of other into b.
func (b *Batch) Append(other *Batch) {
	b.ops = append(b.ops, other.ops...)
	b.size += other.size
}

func (b *Batch) Ops() []Op {
	return b.ops
}

func (b *Batch) Len() int {
	return len(b.ops)
}

// Size is the number of payload bytes, namespaces included.
func (b *Batch) Size() int {
	return b.size
}

func (b *Batch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}
