package binaryCoder

import (
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/i5heu/ouroboros-locket/pkg/pancake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func sampleDocument() map[string]any {
	return map[string]any{
		"string":  "foobar",
		"number":  44.5,
		"long":    int64(-9007199254740993),
		"bool":    true,
		"null":    nil,
		"date":    time.Date(2024, 2, 29, 12, 0, 0, 123, time.UTC),
		"list":    []any{"a", int64(1), []any{}},
		"object":  map[string]any{"child": false},
		"$dollar": "escaped",
		"$$two":   map[string]any{"$numberLong": "not a wrapper"},
	}
}

func TestCoder_RoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		coder := New(Options{Compress: compress})

		payload, err := coder.Encode(sampleDocument())
		require.NoError(t, err)

		out, err := coder.Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, sampleDocument(), out, "compress=%v", compress)
	}
}

func TestCoder_HeaderFlag(t *testing.T) {
	plain, err := New(Options{}).Encode("x")
	require.NoError(t, err)
	assert.Equal(t, byte(payloadHeaderPlain), plain[0])

	compressed, err := New(Options{Compress: true}).Encode("x")
	require.NoError(t, err)
	assert.Equal(t, byte(payloadHeaderLzma), compressed[0])

	// either coder reads both
	out, err := New(Options{}).Decode(compressed)
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

func TestCoder_Deterministic(t *testing.T) {
	coder := New(Options{})
	first, err := coder.Encode(sampleDocument())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := coder.Encode(sampleDocument())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCoder_BlobsDecodeAsBinary(t *testing.T) {
	coder := New(Options{})
	payload, err := coder.Encode(pancake.Pancake{map[string]any{"b": []any{1}}, []byte("buffer")})
	require.NoError(t, err)

	out, err := coder.Decode(payload)
	require.NoError(t, err)

	seq := out.([]any)
	assert.Equal(t, Binary("buffer"), seq[1])
	assert.Equal(t, map[string]any{"b": []any{int64(1)}}, seq[0])

	p := pancake.Sanitize(pancake.Pancake(seq))
	assert.Equal(t, pancake.Pancake{map[string]any{"b": []any{1}}, []byte("buffer")}, p)
}

func TestCoder_Leaves(t *testing.T) {
	coder := New(Options{})
	re := regexp.MustCompile("^ab+c$")

	payload, err := coder.Encode([]any{re, uint64(math.MaxUint64), math.Inf(-1), int32(7)})
	require.NoError(t, err)

	out, err := coder.Decode(payload)
	require.NoError(t, err)

	seq := out.([]any)
	assert.Equal(t, re.String(), seq[0].(*regexp.Regexp).String())
	assert.Equal(t, uint64(math.MaxUint64), seq[1])
	assert.True(t, math.IsInf(seq[2].(float64), -1))
	assert.Equal(t, int64(7), seq[3])
}

func TestCoder_Unsupported(t *testing.T) {
	_, err := New(Options{}).Encode(map[string]any{"c": complex(1, 1)})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestCoder_InvalidPayload(t *testing.T) {
	coder := New(Options{})
	for name, payload := range map[string][]byte{
		"empty":       {},
		"unknownFlag": {0x7f, 1, 2},
		"badLzma":     {payloadHeaderLzma, 1, 2, 3},
		"badProto":    {payloadHeaderPlain, 0xff, 0xff, 0xff},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := coder.Decode(payload)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestCoder_DatesOutsideNanosecondRange(t *testing.T) {
	coder := New(Options{})
	dates := []time.Time{
		{},
		time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1969, 12, 31, 23, 59, 59, 500000000, time.UTC),
		time.Date(9999, 12, 31, 23, 59, 59, 999999999, time.UTC),
	}

	for _, date := range dates {
		payload, err := coder.Encode(map[string]any{"at": date})
		require.NoError(t, err)

		out, err := coder.Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"at": date}, out)
	}
}

func TestCoder_InvalidUTF8Strings(t *testing.T) {
	coder := New(Options{})
	doc := map[string]any{
		"value":   "\xff\xfe",
		"\xffkey": []any{"ok", "\xc3"},
		"$~plain": "escaped like any dollar key",
		"nested":  map[string]any{"\xfe": "\xfd"},
	}

	payload, err := coder.Encode(doc)
	require.NoError(t, err)

	out, err := coder.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, doc, out)
}

func plainPayload(t *testing.T, key, value string) []byte {
	t.Helper()
	data, err := proto.Marshal(wrapped(key, value))
	require.NoError(t, err)
	return append([]byte{payloadHeaderPlain}, data...)
}

func TestCoder_InvalidWrappers(t *testing.T) {
	coder := New(Options{})
	for name, payload := range map[string][]byte{
		"dateWithoutNanos": plainPayload(t, keyDate, "12"),
		"dateBadSeconds":   plainPayload(t, keyDate, "x.000000000"),
		"dateNanosTooBig":  plainPayload(t, keyDate, "1.1000000000"),
		"rawStringBase64":  plainPayload(t, keyRawString, "%%%"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := coder.Decode(payload)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}
