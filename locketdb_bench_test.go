package locketdb

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/i5heu/ouroboros-locket/pkg/locket"
)

type setupLocketsConfig struct {
	totalLockets int
	fields       int
}

func setupDBWithLockets(b *testing.B, conf setupLocketsConfig) (*LocketDB, []string) {
	b.Helper()
	db := setupDB(b, Config{})

	names := make([]string, conf.totalLockets)
	for i := range names {
		names[i] = fmt.Sprintf("locket-%05d", i)
		l := locket.CreateNew()
		for f := 0; f < conf.fields; f++ {
			value := map[string]any{"index": i, "field": f, "payload": make([]byte, 256)}
			if err := l.WriteContent(fmt.Sprintf("field-%d", f), value, locket.WriteOptions{}); err != nil {
				b.Fatalf("WriteContent failed with error: %v", err)
			}
		}
		if err := db.SaveLocket(names[i], l); err != nil {
			b.Fatalf("SaveLocket failed with error: %v", err)
		}
	}
	return db, names
}

func Benchmark_DB_LoadLocket(b *testing.B) {
	db, names := setupDBWithLockets(b, setupLocketsConfig{totalLockets: 500, fields: 8})

	b.Run("LoadLocket", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := db.LoadLocket(names[rand.Intn(len(names))]); err != nil {
				b.Errorf("LoadLocket failed with error: %v", err)
			}
		}
	})
}

func Benchmark_DB_MergeInto(b *testing.B) {
	db, names := setupDBWithLockets(b, setupLocketsConfig{totalLockets: 100, fields: 32})

	incoming := make([]*locket.Locket, len(names))
	for i, name := range names {
		l, err := db.LoadLocket(name)
		if err != nil {
			b.Fatalf("LoadLocket failed with error: %v", err)
		}
		if err := l.WriteContent("field-0", "changed", locket.WriteOptions{}); err != nil {
			b.Fatalf("WriteContent failed with error: %v", err)
		}
		incoming[i] = l
	}

	b.Run("MergeInto", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			n := rand.Intn(len(names))
			if _, err := db.MergeInto(names[n], incoming[n], nil); err != nil {
				b.Errorf("MergeInto failed with error: %v", err)
			}
		}
	})
}
