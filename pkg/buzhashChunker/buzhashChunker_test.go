package buzhashChunker

import (
	"bytes"
	"crypto/sha512"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkBytes_Small(t *testing.T) {
	chunks, err := ChunkBytes([]byte("Hello World"))
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, []byte("Hello World"), chunks[0].Data)
	assert.Equal(t, sha512.Sum512([]byte("Hello World")), chunks[0].Hash)
}

func TestChunkBytes_Empty(t *testing.T) {
	chunks, err := ChunkBytes(nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkBytes_Reassemble(t *testing.T) {
	data := make([]byte, 2<<20)
	rand.New(rand.NewSource(42)).Read(data)

	chunks, err := ChunkBytes(data)
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)

	var joined bytes.Buffer
	for _, c := range chunks {
		assert.Equal(t, sha512.Sum512(c.Data), c.Hash)
		joined.Write(c.Data)
	}
	assert.Equal(t, data, joined.Bytes())
}
