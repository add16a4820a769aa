// Package benchmark contains Go benchmarks for analysis, index construction
// and ranking, measuring throughput and allocation behaviour on synthetic
// collections shaped like the Cranfield corpus.
package benchmark

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/docstore"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/tokenizer"
)

var vocabulary = []string{
	"wing", "flow", "shock", "boundary", "layer", "heat", "transfer", "mach",
	"supersonic", "laminar", "turbulent", "pressure", "plate", "cylinder", "nozzle",
	"slipstream", "lift", "drag", "velocity", "temperature", "viscous", "jet",
	"the", "of", "a", "in", "and", "for", "at", "with",
}

// syntheticCollection returns n documents of 20 to 200 words drawn from a
// skewed vocabulary, deterministic for a given seed.
func syntheticCollection(n int, seed int64) []string {
	rng := rand.New(rand.NewSource(seed))
	docs := make([]string, n)
	var sb strings.Builder
	for i := range docs {
		sb.Reset()
		words := 20 + rng.Intn(180)
		for w := 0; w < words; w++ {
			// Squaring the draw favours the head of the vocabulary.
			f := rng.Float64()
			sb.WriteString(vocabulary[int(f*f*float64(len(vocabulary)))])
			sb.WriteByte(' ')
		}
		docs[i] = sb.String()
	}
	return docs
}

func buildIndex(b *testing.B, docs []string) *index.Index {
	b.Helper()
	ix, err := index.Build(docstore.FromTexts(docs).Documents(), tokenizer.Standard)
	if err != nil {
		b.Fatal(err)
	}
	return ix
}

// BenchmarkIndexBuild measures bulk index construction at various collection
// sizes.
func BenchmarkIndexBuild(b *testing.B) {
	for _, size := range []int{100, 1400, 10000} {
		docs := syntheticCollection(size, 1)
		b.Run(fmt.Sprintf("docs_%d", size), func(b *testing.B) {
			store := docstore.FromTexts(docs).Documents()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := index.Build(store, tokenizer.Standard); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkEngineBuild includes document storage and analysis on top of
// index construction.
func BenchmarkEngineBuild(b *testing.B) {
	docs := syntheticCollection(1400, 2)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine := indexer.NewEngine(tokenizer.Standard, nil)
		if _, err := engine.Build(context.Background(), docs); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFingerprint(b *testing.B) {
	ix := buildIndex(b, syntheticCollection(1400, 3))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ix.Fingerprint()
	}
}

// BenchmarkPostingsLookupParallel measures concurrent read throughput on a
// shared index.
func BenchmarkPostingsLookupParallel(b *testing.B) {
	ix := buildIndex(b, syntheticCollection(10000, 4))
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			pl := ix.Postings(vocabulary[i%len(vocabulary)])
			_ = pl
			i++
		}
	})
}
