package pool

import "testing"

func TestSlicePoolSizeClasses(t *testing.T) {
	sp := NewSlicePool([]int{512, 4096})

	tests := []struct {
		name    string
		request int
		wantCap int
	}{
		{"exact small class", 512, 512},
		{"rounds up to class", 100, 512},
		{"second class", 1000, 4096},
		{"exact large class", 4096, 4096},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := sp.Get(tt.request)
			if len(b) != tt.request {
				t.Errorf("Get(%d) len = %d, want %d", tt.request, len(b), tt.request)
			}
			if cap(b) != tt.wantCap {
				t.Errorf("Get(%d) cap = %d, want %d", tt.request, cap(b), tt.wantCap)
			}
			sp.Put(b)
		})
	}
}

func TestSlicePoolOversized(t *testing.T) {
	sp := NewSlicePool([]int{512})

	b := sp.Get(10_000)
	if len(b) != 10_000 {
		t.Errorf("Get(10000) len = %d, want 10000", len(b))
	}
	// Put of an unpooled size must not panic.
	sp.Put(b)
}

func TestSlicePoolReuse(t *testing.T) {
	sp := NewSlicePool([]int{1024})

	b := sp.Get(1024)
	b[0] = 0xFF
	sp.Put(b)

	// A pooled slice keeps its full capacity available after reuse.
	c := sp.Get(512)
	if cap(c) != 1024 {
		t.Errorf("reused slice cap = %d, want 1024", cap(c))
	}
}

func TestReadBuffersCoversTailCap(t *testing.T) {
	b := ReadBuffers.Get(4 * 1024 * 1024)
	if len(b) != 4*1024*1024 {
		t.Fatalf("Get(4MiB) len = %d", len(b))
	}
	ReadBuffers.Put(b)
}

func BenchmarkSlicePool(b *testing.B) {
	sp := NewSlicePool([]int{64 * 1024})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf := sp.Get(64 * 1024)
		sp.Put(buf)
	}
}
