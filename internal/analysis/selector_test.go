package analysis

import (
	"reflect"
	"testing"

	"glbopt/internal/quality"
)

func TestSelectMethodsPolicy(t *testing.T) {
	tests := []struct {
		name  string
		a     Analysis
		level quality.Level
		want  []Method
	}{
		{
			name:  "small high quality is meshopt only",
			a:     Analysis{VertexCount: 500, FileSizeBytes: 50_000},
			level: quality.High,
			want:  []Method{MethodMeshopt},
		},
		{
			name:  "large model at max races all three",
			a:     Analysis{VertexCount: 120_000, FileSizeBytes: 6_000_000},
			level: quality.MaxCompression,
			want:  []Method{MethodMeshopt, MethodDraco, MethodHybrid},
		},
		{
			name:  "vertex count alone adds draco",
			a:     Analysis{VertexCount: 50_001, FileSizeBytes: 10},
			level: quality.High,
			want:  []Method{MethodMeshopt, MethodDraco},
		},
		{
			name:  "threshold boundary excludes draco",
			a:     Analysis{VertexCount: 50_000, FileSizeBytes: 10},
			level: quality.High,
			want:  []Method{MethodMeshopt},
		},
		{
			name:  "file size alone adds hybrid",
			a:     Analysis{VertexCount: 10, FileSizeBytes: 5_000_001},
			level: quality.High,
			want:  []Method{MethodMeshopt, MethodHybrid},
		},
		{
			name:  "balanced always includes hybrid",
			a:     Analysis{VertexCount: 10, FileSizeBytes: 10},
			level: quality.Balanced,
			want:  []Method{MethodMeshopt, MethodHybrid},
		},
		{
			name:  "max always includes draco and hybrid",
			a:     Analysis{},
			level: quality.MaxCompression,
			want:  []Method{MethodMeshopt, MethodDraco, MethodHybrid},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SelectMethods(tc.a, tc.level)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("SelectMethods = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSelectMethodsIsDeterministic(t *testing.T) {
	a := Analysis{VertexCount: 120_000, FileSizeBytes: 6_000_000, Complexity: ComplexityHigh}
	first := SelectMethods(a, quality.MaxCompression)
	for range 10 {
		if got := SelectMethods(a, quality.MaxCompression); !reflect.DeepEqual(got, first) {
			t.Fatalf("selection must be pure: %v != %v", got, first)
		}
	}
}
