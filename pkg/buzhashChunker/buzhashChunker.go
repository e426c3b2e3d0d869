// Package buzhashChunker splits data into content-defined chunks, so equal
// regions of different payloads produce equal chunks.
package buzhashChunker

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"

	chunker "github.com/ipfs/boxo/chunker"
)

const HashSize = sha512.Size

type ChunkData struct {
	Hash [HashSize]byte // SHA-512 of Data
	Data []byte
}

func (c ChunkData) String() string {
	return fmt.Sprintf("ChunkData{Hash: %s, Data(length): %d}", hex.EncodeToString(c.Hash[:]), len(c.Data))
}

func ChunkBytes(data []byte) ([]ChunkData, error) {
	return ChunkReader(bytes.NewReader(data))
}

// ChunkReader reads r to the end. Empty input gives no chunks.
func ChunkReader(r io.Reader) ([]ChunkData, error) {
	bz := chunker.NewBuzhash(r)

	chunks := []ChunkData{}
	for {
		chunk, err := bz.NextBytes()
		if err == io.EOF {
			return chunks, nil
		}
		if err != nil {
			return nil, fmt.Errorf("buzhashChunker: reading chunk %d: %w", len(chunks), err)
		}

		chunks = append(chunks, ChunkData{
			Hash: sha512.Sum512(chunk),
			Data: chunk,
		})
	}
}
