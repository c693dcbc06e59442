package benchutil

import (
	"testing"

	"github.com/eunmann/typedblock/pkg/flex"
)

func TestColumnShapes(t *testing.T) {
	tests := []struct {
		shape string
		tags  []flex.Tag
	}{
		{"sorted_ints", []flex.Tag{flex.Integer}},
		{"object_sizes", []flex.Tag{flex.Integer}},
		{"prices", []flex.Tag{flex.Float}},
		{"measurements", []flex.Tag{flex.Float}},
		{"categories", []flex.Tag{flex.String}},
		{"object_keys", []flex.Tag{flex.String}},
		{"sparse", []flex.Tag{flex.Integer, flex.Undefined}},
		{"embeddings", []flex.Tag{flex.Vector}},
		{"mixed", []flex.Tag{flex.Integer, flex.String, flex.Float, flex.Undefined}},
	}
	if len(tests) != len(Shapes) {
		t.Fatalf("%d shapes tested, %d defined", len(tests), len(Shapes))
	}
	for _, tt := range tests {
		t.Run(tt.shape, func(t *testing.T) {
			values := NewGenerator(0).Column(tt.shape, 2000)
			if len(values) != 2000 {
				t.Fatalf("got %d values", len(values))
			}
			var want, got flex.TagSet
			for _, tag := range tt.tags {
				want = want.Add(tag)
			}
			for _, v := range values {
				got = got.Add(v.Tag())
			}
			if got != want {
				t.Errorf("tags = %b, want %b", got, want)
			}
		})
	}
}

func TestColumnDeterministic(t *testing.T) {
	a := NewGenerator(7).Column("object_keys", 100)
	b := NewGenerator(7).Column("object_keys", 100)
	for i := range a {
		if !a[i].Equal(b[i]) {
			t.Fatalf("value %d differs: %s vs %s", i, a[i], b[i])
		}
	}
}
