package fsnap

import "testing"

func TestChunkEqual(t *testing.T) {
	snapshot := []byte("abcdefgh")

	tests := []struct {
		name   string
		chunk  string
		offset int
		want   bool
	}{
		{name: "prefix", chunk: "abcd", offset: 0, want: true},
		{name: "middle", chunk: "cdef", offset: 2, want: true},
		{name: "suffix", chunk: "gh", offset: 6, want: true},
		{name: "whole", chunk: "abcdefgh", offset: 0, want: true},
		{name: "empty at end", chunk: "", offset: 8, want: true},
		{name: "different bytes", chunk: "abcx", offset: 0, want: false},
		{name: "runs past end", chunk: "ghij", offset: 6, want: false},
		{name: "offset past end", chunk: "", offset: 9, want: false},
		{name: "negative offset", chunk: "a", offset: -1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chunkEqual([]byte(tt.chunk), snapshot, tt.offset); got != tt.want {
				t.Errorf("chunkEqual(%q, %d) = %v, want %v", tt.chunk, tt.offset, got, tt.want)
			}
		})
	}
}
