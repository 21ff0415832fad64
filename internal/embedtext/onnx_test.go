package embedtext

import (
	"math"
	"path/filepath"
	"testing"
)

func TestNewONNXEmbedder_MissingModelDirIsError(t *testing.T) {
	_, err := NewONNXEmbedder(filepath.Join(t.TempDir(), "does-not-exist"), "", 0)
	if err == nil {
		t.Fatal("expected an error for a missing model directory")
	}
}

func TestONNXEmbedder_DimensionsMatchesSemanticDims(t *testing.T) {
	e := &ONNXEmbedder{modelName: "test-model"}
	if got := e.Dimensions(); got != SemanticDims {
		t.Errorf("Dimensions() = %d, want %d", got, SemanticDims)
	}
	if got := e.ModelName(); got != "test-model" {
		t.Errorf("ModelName() = %q, want %q", got, "test-model")
	}
}

func TestMeanPool_AveragesOnlyAttendedTokensAndNormalizes(t *testing.T) {
	const dims = 2
	// Two tokens, batch 0: [1,1] attended, [9,9] masked out -> mean [1,1],
	// then L2-normalized to unit length.
	hidden := []float32{1, 1, 9, 9}
	mask := []int64{1, 0}

	got := meanPool(hidden, mask, 0, 2, dims)
	if len(got) != dims {
		t.Fatalf("expected %d dims, got %d", dims, len(got))
	}
	var norm float64
	for _, v := range got {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-6 {
		t.Errorf("expected unit-normalized output, got squared norm %v", norm)
	}
	want := float32(1 / math.Sqrt2)
	for _, v := range got {
		if math.Abs(float64(v-want)) > 1e-6 {
			t.Errorf("expected both dims ~%v, got %v", want, got)
		}
	}
}

func TestMeanPool_AllMaskedOutAvoidsDivideByZero(t *testing.T) {
	hidden := []float32{5, 5}
	mask := []int64{0}
	got := meanPool(hidden, mask, 0, 1, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 dims, got %d", len(got))
	}
}
