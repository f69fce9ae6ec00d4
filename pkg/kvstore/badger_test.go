package kvstore

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/fystack/storage-inspector/pkg/common/config"
	"github.com/fystack/storage-inspector/pkg/infra"
)

type BadgerStoreTestSuite struct {
	suite.Suite
	store *BadgerStore
}

func TestBadgerStoreTestSuite(t *testing.T) {
	suite.Run(t, new(BadgerStoreTestSuite))
}

func (s *BadgerStoreTestSuite) SetupTest() {
	store, err := NewInMemoryBadgerStore("test", infra.JSON)
	s.Require().NoError(err)
	s.store = store
}

func (s *BadgerStoreTestSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func (s *BadgerStoreTestSuite) TestSetGet() {
	s.Require().NoError(s.store.Set("a", "1"))
	v, err := s.store.Get("a")
	s.Require().NoError(err)
	s.Equal("1", v)

	_, err = s.store.Get("missing")
	s.ErrorIs(err, ErrKeyNotFound)

	s.ErrorIs(s.store.Set("", "x"), ErrKeyEmpty)
}

func (s *BadgerStoreTestSuite) TestAnyRoundTrip() {
	type word struct {
		Slot  string `json:"slot"`
		Value string `json:"value"`
	}
	in := word{Slot: "0x01", Value: "0xff"}
	s.Require().NoError(s.store.SetAny("w", in))

	var out word
	found, err := s.store.GetAny("w", &out)
	s.Require().NoError(err)
	s.True(found)
	s.Equal(in, out)

	found, err = s.store.GetAny("nope", &out)
	s.Require().NoError(err)
	s.False(found)

	s.Error(s.store.SetAny("w", nil))
}

func (s *BadgerStoreTestSuite) TestListDelete() {
	s.Require().NoError(s.store.Set("word/1", "a"))
	s.Require().NoError(s.store.Set("word/2", "b"))
	s.Require().NoError(s.store.Set("other", "c"))

	pairs, err := s.store.List("word/")
	s.Require().NoError(err)
	s.Require().Len(pairs, 2)
	s.Equal("test/word/1", pairs[0].Key)
	s.Equal([]byte("b"), pairs[1].Value)

	s.Require().NoError(s.store.Delete("word/1"))
	pairs, err = s.store.List("word/")
	s.Require().NoError(err)
	s.Len(pairs, 1)

	_, err = s.store.List("")
	s.Error(err)
}

func TestBadgerStore_WordCodec(t *testing.T) {
	store, err := NewInMemoryBadgerStore("cache", infra.Words)
	require.NoError(t, err)
	defer store.Close()

	word := common.HexToHash("0x2a")
	require.NoError(t, store.SetAny("w", word))

	pairs, err := store.List("w")
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Len(t, pairs[0].Value, common.HashLength)

	var out common.Hash
	found, err := store.GetAny("w", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, word, out)

	assert.Error(t, store.SetAny("s", "not a word"))
	var s string
	_, err = store.GetAny("w", &s)
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	store, err := NewFromConfig(config.CacheConfig{Enabled: true, InMemory: true})
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, "badger", store.GetName())

	dir := t.TempDir()
	disk, err := NewFromConfig(config.CacheConfig{Enabled: true, Type: "badger", Directory: dir})
	require.NoError(t, err)
	require.NoError(t, disk.Set("k", "v"))
	require.NoError(t, disk.Close())

	_, err = NewFromConfig(config.CacheConfig{Type: "consul"})
	assert.Error(t, err)
}
