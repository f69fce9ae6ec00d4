package decoder

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fystack/storage-inspector/pkg/storage"
	"github.com/fystack/storage-inspector/pkg/storage/codec"
	"github.com/fystack/storage-inspector/pkg/storage/slot"
)

var (
	testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	errNodeDown  = errors.New("node unreachable")
)

// fixtureReader serves canned words and records every read.
type fixtureReader struct {
	mu     sync.Mutex
	words  map[common.Hash]common.Hash
	fail   map[common.Hash]error
	reads  []common.Hash
	blocks []*big.Int
	head   uint64
}

func newFixtureReader() *fixtureReader {
	return &fixtureReader{
		words: make(map[common.Hash]common.Hash),
		fail:  make(map[common.Hash]error),
	}
}

func (f *fixtureReader) StorageAt(_ context.Context, _ common.Address, key common.Hash, block *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, key)
	f.blocks = append(f.blocks, block)
	if err, ok := f.fail[key]; ok {
		return common.Hash{}, err
	}
	return f.words[key], nil
}

func (f *fixtureReader) set(s *big.Int, word common.Hash) {
	f.words[slot.Key(s)] = word
}

func (f *fixtureReader) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reads)
}

// pinnedReader adds a chain head.
type pinnedReader struct {
	*fixtureReader
}

func (p pinnedReader) BlockNumber(context.Context) (uint64, error) {
	return p.head, nil
}

// batchReader counts batch round trips.
type batchReader struct {
	*fixtureReader
	batches int
}

func (b *batchReader) BatchStorageAt(ctx context.Context, contract common.Address, keys []common.Hash, block *big.Int) ([]common.Hash, error) {
	b.mu.Lock()
	b.batches++
	b.mu.Unlock()
	out := make([]common.Hash, len(keys))
	for i, k := range keys {
		w, err := b.StorageAt(ctx, contract, k, block)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

type lock struct {
	user      common.Address
	startTime uint64
	amount    *big.Int
}

func lockLayout(t *testing.T) codec.Layout {
	t.Helper()
	var fields []codec.Field
	for _, d := range [][2]string{{"user", "address"}, {"startTime", "uint64"}, {"amount", "uint256"}} {
		f, err := codec.ParseType(d[0], d[1])
		require.NoError(t, err)
		fields = append(fields, f)
	}
	l, err := codec.Pack(fields)
	require.NoError(t, err)
	return l
}

// seedLocks stores locks as a `LockInfo[] _locks` at declaration slot 0,
// building the words byte by byte.
func seedLocks(t *testing.T, r *fixtureReader, locks []lock) *big.Int {
	t.Helper()
	r.set(big.NewInt(0), common.BigToHash(big.NewInt(int64(len(locks)))))

	area, err := slot.ResolveArrayBase(big.NewInt(0))
	require.NoError(t, err)

	for i, l := range locks {
		var w1 common.Hash
		copy(w1[12:32], l.user.Bytes())
		for b := 0; b < 8; b++ {
			w1[11-b] = byte(l.startTime >> (8 * b))
		}
		base := new(big.Int).Add(area, big.NewInt(int64(2*i)))
		r.set(base, w1)
		r.set(new(big.Int).Add(base, big.NewInt(1)), common.BigToHash(l.amount))
	}
	return area
}

func threeLocks() []lock {
	ether := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return []lock{
		{user: common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), startTime: 1700000000, amount: new(big.Int).Mul(big.NewInt(1), ether)},
		{user: common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"), startTime: 1700000600, amount: new(big.Int).Mul(big.NewInt(250), ether)},
		{user: common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906"), startTime: ^uint64(0), amount: big.NewInt(1)},
	}
}

func locksDescriptor(t *testing.T) ArrayDescriptor {
	return ArrayDescriptor{Name: "_locks", Slot: big.NewInt(0), Layout: lockLayout(t)}
}

func TestDecode_EndToEnd(t *testing.T) {
	r := newFixtureReader()
	locks := threeLocks()
	area := seedLocks(t, r, locks)

	res, err := New(r).Decode(context.Background(), testContract, locksDescriptor(t))
	require.NoError(t, err)
	require.NoError(t, res.Err())

	assert.Equal(t, int64(3), res.Length.Int64())
	assert.Equal(t, 0, area.Cmp(res.AreaSlot))
	require.Len(t, res.Elements, 3)

	for i, want := range locks {
		el := res.Elements[i]
		require.NotNil(t, el, "element %d", i)

		user, _ := el.Get("user")
		start, _ := el.Get("startTime")
		amount, _ := el.Get("amount")
		assert.Equal(t, want.user, user.Address)
		assert.Equal(t, want.startTime, start.Int.Uint64())
		assert.Equal(t, 0, want.amount.Cmp(amount.Int))
	}

	// one length read plus two words per element
	assert.Equal(t, 7, r.readCount())
}

func TestDecode_EmptyArray(t *testing.T) {
	r := newFixtureReader()

	res, err := New(r).Decode(context.Background(), testContract, locksDescriptor(t))
	require.NoError(t, err)

	assert.Equal(t, 0, res.Length.Sign())
	assert.Empty(t, res.Elements)
	assert.Nil(t, res.AreaSlot)
	assert.Equal(t, 1, r.readCount(), "only the length word may be read")
}

func TestDecode_ElementFailureIsReportedNotZeroed(t *testing.T) {
	r := newFixtureReader()
	area := seedLocks(t, r, threeLocks())

	// second word of element 1
	broken := new(big.Int).Add(area, big.NewInt(3))
	r.fail[slot.Key(broken)] = errNodeDown

	res, err := New(r).Decode(context.Background(), testContract, locksDescriptor(t))
	require.NoError(t, err)

	require.Len(t, res.Elements, 3)
	assert.NotNil(t, res.Elements[0])
	assert.Nil(t, res.Elements[1])
	assert.NotNil(t, res.Elements[2])
	assert.Equal(t, 2, res.Decoded())

	require.Len(t, res.Errors, 1)
	elErr := res.Errors[0]
	assert.Equal(t, uint64(1), elErr.Index)
	assert.Equal(t, 0, new(big.Int).Add(area, big.NewInt(2)).Cmp(elErr.Slot))
	assert.ErrorIs(t, elErr, storage.ErrStorageRead)
	assert.ErrorIs(t, elErr, errNodeDown)
	assert.ErrorIs(t, res.Err(), errNodeDown)
	assert.Contains(t, elErr.Error(), "element 1")
}

func TestDecode_LengthReadFailureAborts(t *testing.T) {
	r := newFixtureReader()
	r.fail[slot.Key(big.NewInt(0))] = errNodeDown

	res, err := New(r).Decode(context.Background(), testContract, locksDescriptor(t))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, storage.ErrStorageRead)
	assert.ErrorIs(t, err, errNodeDown)
}

func TestDecode_StructuralErrorsFetchNothing(t *testing.T) {
	overflow := codec.Layout{
		WordWidth: 1,
		Fields: []codec.Placement{
			{Field: codec.Field{Name: "user", Type: codec.TypeAddress, Width: 20}},
			{Field: codec.Field{Name: "amount", Type: codec.TypeUint, Width: 16}, Offset: 20},
		},
	}

	tests := []struct {
		name string
		desc ArrayDescriptor
		want error
	}{
		{name: "negative slot", desc: ArrayDescriptor{Name: "a", Slot: big.NewInt(-1), Layout: lockLayout(t)}, want: storage.ErrInvalidSlotIndex},
		{name: "nil slot", desc: ArrayDescriptor{Name: "a", Layout: lockLayout(t)}, want: storage.ErrInvalidSlotIndex},
		{name: "layout overflow", desc: ArrayDescriptor{Name: "a", Slot: big.NewInt(0), Layout: overflow}, want: storage.ErrLayoutOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFixtureReader()
			seedLocks(t, r, threeLocks())

			_, err := New(r).Decode(context.Background(), testContract, tt.desc)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsStructural(err))
			assert.Equal(t, 0, r.readCount())
		})
	}
}

func TestDecode_FieldWidthMismatchPerElement(t *testing.T) {
	r := newFixtureReader()
	seedLocks(t, r, threeLocks())

	desc := ArrayDescriptor{
		Name: "_locks",
		Slot: big.NewInt(0),
		Layout: codec.Layout{
			WordWidth: 2,
			Fields: []codec.Placement{
				{Field: codec.Field{Name: "user", Type: codec.TypeAddress, Width: 19}},
			},
		},
	}

	res, err := New(r).Decode(context.Background(), testContract, desc)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Decoded())
	require.Len(t, res.Errors, 3)
	for i, e := range res.Errors {
		assert.Equal(t, uint64(i), e.Index)
		assert.ErrorIs(t, e, storage.ErrFieldWidthMismatch)
	}
}

func TestDecodeRange(t *testing.T) {
	r := newFixtureReader()
	locks := threeLocks()
	seedLocks(t, r, locks)
	dec := New(r)

	res, err := dec.DecodeRange(context.Background(), testContract, locksDescriptor(t), 1, 1)
	require.NoError(t, err)
	require.Len(t, res.Elements, 1)
	assert.Equal(t, uint64(1), res.From)
	user, _ := res.Elements[0].Get("user")
	assert.Equal(t, locks[1].user, user.Address)

	res, err = dec.DecodeRange(context.Background(), testContract, locksDescriptor(t), 2, 10)
	require.NoError(t, err)
	assert.Len(t, res.Elements, 1)

	res, err = dec.DecodeRange(context.Background(), testContract, locksDescriptor(t), 5, 10)
	require.NoError(t, err)
	assert.Empty(t, res.Elements)
}

func TestDecode_MaxLength(t *testing.T) {
	r := newFixtureReader()
	seedLocks(t, r, threeLocks())

	_, err := New(r, WithMaxLength(2)).Decode(context.Background(), testContract, locksDescriptor(t))
	assert.ErrorIs(t, err, storage.ErrArrayTooLong)
	assert.Equal(t, 1, r.readCount())

	// a garbage length word larger than uint64
	r.set(big.NewInt(0), common.HexToHash("0x010000000000000000000000000000000000000000"))
	_, err = New(r, WithMaxLength(0)).Decode(context.Background(), testContract, locksDescriptor(t))
	assert.ErrorIs(t, err, storage.ErrArrayTooLong)
}

func TestDecode_PinsEveryReadToOneBlock(t *testing.T) {
	fr := newFixtureReader()
	fr.head = 19_000_000
	seedLocks(t, fr, threeLocks())

	res, err := New(pinnedReader{fr}).Decode(context.Background(), testContract, locksDescriptor(t))
	require.NoError(t, err)
	require.NotNil(t, res.Block)
	assert.Equal(t, uint64(19_000_000), res.Block.Uint64())

	for _, b := range fr.blocks {
		require.NotNil(t, b)
		assert.Equal(t, uint64(19_000_000), b.Uint64())
	}
}

func TestDecode_BlockOptions(t *testing.T) {
	fr := newFixtureReader()
	fr.head = 50
	seedLocks(t, fr, threeLocks())

	res, err := New(pinnedReader{fr}, WithBlock(big.NewInt(42))).Decode(context.Background(), testContract, locksDescriptor(t))
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Block.Int64())

	fr.blocks = nil
	res, err = New(pinnedReader{fr}, WithoutPinning()).Decode(context.Background(), testContract, locksDescriptor(t))
	require.NoError(t, err)
	assert.Nil(t, res.Block)
	for _, b := range fr.blocks {
		assert.Nil(t, b)
	}
}

func TestDecode_UsesBatchReader(t *testing.T) {
	br := &batchReader{fixtureReader: newFixtureReader()}
	seedLocks(t, br.fixtureReader, threeLocks())

	res, err := New(br, WithConcurrency(1)).Decode(context.Background(), testContract, locksDescriptor(t))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Decoded())
	assert.Equal(t, 3, br.batches)
}

func TestDecode_ContextCancelled(t *testing.T) {
	r := newFixtureReader()
	seedLocks(t, r, threeLocks())

	ctx, cancel := context.WithCancel(context.Background())
	cancelling := &cancelOnElementReader{fixtureReader: r, cancel: cancel}

	_, err := New(cancelling, WithConcurrency(1)).Decode(ctx, testContract, locksDescriptor(t))
	assert.ErrorIs(t, err, context.Canceled)
}

// cancelOnElementReader cancels the pass on the first element read.
type cancelOnElementReader struct {
	*fixtureReader
	cancel context.CancelFunc
}

func (c *cancelOnElementReader) StorageAt(ctx context.Context, contract common.Address, key common.Hash, block *big.Int) (common.Hash, error) {
	if key != slot.Key(big.NewInt(0)) {
		c.cancel()
		return common.Hash{}, ctx.Err()
	}
	return c.fixtureReader.StorageAt(ctx, contract, key, block)
}
