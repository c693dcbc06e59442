package typedblock_test

import (
	"fmt"
	"testing"

	"github.com/eunmann/typedblock/pkg/benchutil"
	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/typedblock"
)

/*
Benchmark Categories for the block codec:

1. BenchmarkEncode - encodes one block per shape
   - Measures: values/sec, bytes/value, allocations

2. BenchmarkDecode - decodes the same blocks in one call

3. BenchmarkStream - reads the blocks through a Stream in small windows

4. BenchmarkEncode_Scaling - larger blocks (gated)
   - Run with: TYPEDBLOCK_LONG_BENCH=1 go test -bench=Scaling
*/

func BenchmarkEncode(b *testing.B) {
	for _, shape := range benchutil.Shapes {
		for _, size := range benchutil.BenchmarkSizes {
			values := benchutil.NewGenerator(0).Column(shape, size)
			b.Run(fmt.Sprintf("%s/size=%d", shape, size), func(b *testing.B) {
				benchEncode(b, values)
			})
		}
	}
}

func BenchmarkEncode_Scaling(b *testing.B) {
	benchutil.SkipIfNoLongBench(b)
	for _, size := range benchutil.ScalingSizes {
		values := benchutil.NewGenerator(0).Column("object_keys", size)
		b.Run(fmt.Sprintf("size=%d", size), func(b *testing.B) {
			benchEncode(b, values)
		})
	}
}

func benchEncode(b *testing.B, values []flex.Value) {
	b.ReportAllocs()
	var encoded int
	for i := 0; i < b.N; i++ {
		data, _, err := typedblock.Encode(values)
		if err != nil {
			b.Fatal(err)
		}
		encoded = len(data)
	}
	b.ReportMetric(float64(b.N*len(values))/b.Elapsed().Seconds(), "values/sec")
	b.ReportMetric(float64(encoded)/float64(len(values)), "bytes/value")
}

func BenchmarkDecode(b *testing.B) {
	for _, shape := range benchutil.Shapes {
		values := benchutil.NewGenerator(0).Column(shape, 65536)
		data, info, err := typedblock.Encode(values)
		if err != nil {
			b.Fatal(err)
		}
		out := make([]flex.Value, len(values))
		b.Run(shape, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if err := typedblock.DecodeInto(info, data, out); err != nil {
					b.Fatal(err)
				}
			}
			b.ReportMetric(float64(b.N*len(values))/b.Elapsed().Seconds(), "values/sec")
		})
	}
}

func BenchmarkStream(b *testing.B) {
	for _, shape := range benchutil.Shapes {
		values := benchutil.NewGenerator(0).Column(shape, 65536)
		data, info, err := typedblock.Encode(values)
		if err != nil {
			b.Fatal(err)
		}
		window := make([]flex.Value, 256)
		b.Run(shape, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				s, err := typedblock.NewStream(info, data)
				if err != nil {
					b.Fatal(err)
				}
				for s.Remaining() > 0 {
					if _, err := s.Read(window); err != nil {
						b.Fatal(err)
					}
				}
			}
		})
	}
}
