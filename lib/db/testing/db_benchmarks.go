package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ValentinKolb/roc/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			benchmarkSet(b, factory())
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory())
		})

		b.Run("Range", func(b *testing.B) {
			benchmarkRange(b, factory())
		})

		b.Run("SaveLoad", func(b *testing.B) {
			benchmarkSaveLoad(b, factory)
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

const benchUsers = 16

func fill(database db.KVDB, n int) {
	for i := 0; i < n; i++ {
		database.Set(fmt.Sprintf("user-%d", i%benchUsers), fmt.Sprintf("key-%08d", i), uint64(i), uint64(i+1))
	}
}

// Benchmark for Set operation
func benchmarkSet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Set(fmt.Sprintf("user-%d", i%benchUsers), fmt.Sprintf("key-%d", i), uint64(i), uint64(i+1))
	}
}

// Benchmark for Get operation
func benchmarkGet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	const n = 100_000
	fill(database, n)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := i % n
		database.Get(fmt.Sprintf("user-%d", k%benchUsers), fmt.Sprintf("key-%08d", k))
	}
}

// Benchmark for Range over a narrow window of a single user
func benchmarkRange(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	const n = 100_000
	fill(database, n)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		start := rand.Intn(n - 1000)
		database.Range("user-0", fmt.Sprintf("key-%08d", start), fmt.Sprintf("key-%08d", start+1000))
	}
}

// Benchmark for a full Save/Load cycle
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()
	target := factory()
	b.Cleanup(func() {
		database.Close()
		target.Close()
	})

	fill(database, 10_000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if err := database.Save(&buf); err != nil {
			b.Fatal(err)
		}
		if err := target.Load(&buf); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark for a read heavy mix of operations
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	const n = 10_000
	fill(database, n)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		user := fmt.Sprintf("user-%d", i%benchUsers)
		key := fmt.Sprintf("key-%08d", i%n)
		switch i % 10 {
		case 0:
			database.Set(user, key, uint64(i), uint64(n+i))
		case 1:
			database.Delete(user, key, uint64(n+i))
		case 2:
			database.List(user)
		default:
			database.Get(user, key)
		}
	}
}
