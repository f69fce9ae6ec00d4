package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fystack/storage-inspector/internal/decoder"
	"github.com/fystack/storage-inspector/pkg/common/enum"
	"github.com/fystack/storage-inspector/pkg/storage"
	"github.com/fystack/storage-inspector/pkg/storage/codec"
)

var user = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

func ether(s string) *big.Int {
	v, _ := new(big.Int).SetString(s, 10)
	return v
}

func lock(startTime int64, amount *big.Int) *codec.Element {
	return &codec.Element{Fields: []codec.FieldValue{
		{Name: "user", Value: codec.AddressValue(user)},
		{Name: "startTime", Value: codec.UintValue(big.NewInt(startTime))},
		{Name: "amount", Value: codec.UintValue(amount)},
	}}
}

func sampleResult() *decoder.Result {
	return &decoder.Result{
		Contract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		Array:    "locks",
		Block:    big.NewInt(42),
		Length:   big.NewInt(3),
		AreaSlot: big.NewInt(1),
		Elements: []*codec.Element{
			lock(1700000000, ether("1500000000000000000")),
			nil,
			lock(1700000002, big.NewInt(0)),
		},
		Errors: []*storage.ElementError{
			{Index: 1, Slot: big.NewInt(3), Err: storage.ReadError(errors.New("timeout"))},
		},
	}
}

var rntOptions = Options{
	Contract: "esRNT",
	Formats:  map[string]FieldFormat{"amount": {Decimals: 18, Unit: "RNT"}},
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		v    codec.Value
		f    FieldFormat
		want string
	}{
		{"ether", codec.UintValue(ether("1500000000000000000")), FieldFormat{Decimals: 18}, "1.5"},
		{"whole", codec.UintValue(ether("2000000000000000000")), FieldFormat{Decimals: 18}, "2"},
		{"tiny", codec.UintValue(big.NewInt(1)), FieldFormat{Decimals: 18}, "0.000000000000000001"},
		{"zero", codec.UintValue(big.NewInt(0)), FieldFormat{Decimals: 6}, "0"},
		{"no decimals", codec.UintValue(big.NewInt(1234)), FieldFormat{}, "1234"},
		{"uint256 max", codec.UintValue(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))), FieldFormat{},
			"115792089237316195423570985008687907853269984665640564039457584007913129639935"},
		{"address ignores decimals", codec.AddressValue(user), FieldFormat{Decimals: 18}, user.Hex()},
		{"bool", codec.BoolValue(true), FieldFormat{}, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.v, tt.f))
		})
	}
}

func TestTextRenderer(t *testing.T) {
	r, err := New(enum.OutputFormatText, rntOptions)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, sampleResult()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "locks length: 3 (block 42)", lines[0])
	assert.Equal(t, "locks[0]: user: 0x70997970C51812dc3A010C7d01b50e0d17dc79C8, startTime: 1700000000, amount: 1.5 RNT", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "locks[1]: error: element 1 (slot 0x3)"), lines[2])
	assert.Contains(t, lines[2], "timeout")
	assert.Equal(t, "locks[2]: user: 0x70997970C51812dc3A010C7d01b50e0d17dc79C8, startTime: 1700000002, amount: 0 RNT", lines[3])
}

func TestTextRenderer_RangeIndexes(t *testing.T) {
	res := sampleResult()
	res.From = 10
	res.Block = nil
	res.Errors[0].Index = 11

	r, _ := New(enum.OutputFormatText, Options{})
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, res))

	out := buf.String()
	assert.Contains(t, out, "locks length: 3 (block latest)")
	assert.Contains(t, out, "locks[10]: user:")
	assert.Contains(t, out, "locks[11]: error:")
	assert.Contains(t, out, "amount: 1500000000000000000\n")
}

func TestJSONRenderer(t *testing.T) {
	r, err := New(enum.OutputFormatJSON, rntOptions)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, sampleResult()))

	var doc struct {
		Contract string              `json:"contract"`
		Block    string              `json:"block"`
		Elements []map[string]any    `json:"elements"`
		Errors   []map[string]any    `json:"errors"`
		Display  []map[string]string `json:"display"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "esRNT", doc.Contract)
	assert.Equal(t, "42", doc.Block)
	require.Len(t, doc.Elements, 3)
	assert.Equal(t, "1500000000000000000", doc.Elements[0]["amount"])
	assert.Nil(t, doc.Elements[1])
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "1.5 RNT", doc.Display[0]["amount"])
	assert.Nil(t, doc.Display[1])
}

func TestCSVRenderer(t *testing.T) {
	r, err := New(enum.OutputFormatCSV, rntOptions)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, sampleResult()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "index,user,startTime,amount (RNT),error", lines[0])
	assert.Equal(t, "0,0x70997970C51812dc3A010C7d01b50e0d17dc79C8,1700000000,1.5,", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "1,,,,"), lines[2])
	assert.Equal(t, "2,0x70997970C51812dc3A010C7d01b50e0d17dc79C8,1700000002,0,", lines[3])
}

func TestCSVRenderer_ExplicitColumns(t *testing.T) {
	res := sampleResult()
	res.Elements = []*codec.Element{nil, nil, nil}

	r, _ := New(enum.OutputFormatCSV, Options{Columns: []string{"user", "amount"}})
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, res))
	assert.True(t, strings.HasPrefix(buf.String(), "index,user,amount,error\n"))
}

func TestNew_UnknownFormat(t *testing.T) {
	_, err := New("xml", Options{})
	assert.Error(t, err)
}
