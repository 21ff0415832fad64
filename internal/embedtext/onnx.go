package embedtext

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

// onnxBatchSize bounds memory and inference latency per call.
const onnxBatchSize = 8

// onnxMaxSeqLen is the effective maximum token length per input; BGE/MiniLM
// class models support up to 512, capping lower keeps the attention matrix
// (O(seqLen^2)) bounded for note-length text.
const onnxMaxSeqLen = 256

// ONNXEmbedder runs a local sentence-embedding model (BGE-small/MiniLM
// class, 384-dim) through onnxruntime_go, tokenized with sugarme/tokenizer.
type ONNXEmbedder struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tok       *tokenizer.Tokenizer
	modelName string
}

// NewONNXEmbedder loads model.onnx and tokenizer.json from modelDir.
// ortLibPath is the path to the onnxruntime shared library; pass "" to use
// the system default. numThreads controls intra-op parallelism; 0 picks
// min(4, NumCPU).
func NewONNXEmbedder(modelDir, ortLibPath string, numThreads int) (*ONNXEmbedder, error) {
	modelPath := filepath.Join(modelDir, "model.onnx")
	tokenizerPath := filepath.Join(modelDir, "tokenizer.json")

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("onnx model not found at %s: %w", modelPath, err)
	}
	if _, err := os.Stat(tokenizerPath); err != nil {
		return nil, fmt.Errorf("tokenizer not found at %s: %w", tokenizerPath, err)
	}

	if ortLibPath != "" {
		ort.SetSharedLibraryPath(ortLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initializing onnxruntime: %w", err)
	}

	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
		if numThreads > 4 {
			numThreads = 4
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(numThreads); err != nil {
		return nil, fmt.Errorf("setting intra-op threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("setting inter-op threads: %w", err)
	}

	inputNames := []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames := []string{"last_hidden_state"}
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("creating onnx session: %w", err)
	}

	tok, err := pretrained.FromFile(tokenizerPath)
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("loading tokenizer: %w", err)
	}

	return &ONNXEmbedder{
		session:   session,
		tok:       tok,
		modelName: filepath.Base(modelDir),
	}, nil
}

// Close releases the ONNX session.
func (e *ONNXEmbedder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
}

// ModelName identifies this embedder for cache-key purposes.
func (e *ONNXEmbedder) ModelName() string {
	return e.modelName
}

// Dimensions returns the fixed semantic output dimensionality.
func (e *ONNXEmbedder) Dimensions() int {
	return SemanticDims
}

// Embed embeds a single text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in onnxBatchSize-sized chunks, serialising access
// to the underlying session (onnxruntime_go sessions are not safe for
// concurrent Run calls).
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += onnxBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := i + onnxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.runBatch(texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch [%d:%d]: %w", i, end, err)
		}
		results = append(results, batch...)
	}
	return results, nil
}

type encodedText struct {
	ids  []int64
	mask []int64
}

func (e *ONNXEmbedder) runBatch(texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	all := make([]encodedText, len(texts))
	maxLen := 0
	for i, text := range texts {
		enc, err := e.tok.EncodeSingle(text, true)
		if err != nil {
			return nil, fmt.Errorf("tokenizing text %d: %w", i, err)
		}
		ids := enc.Ids
		if len(ids) > onnxMaxSeqLen {
			ids = ids[:onnxMaxSeqLen]
		}
		mask := enc.AttentionMask
		if len(mask) > len(ids) {
			mask = mask[:len(ids)]
		}
		ids64 := make([]int64, len(ids))
		mask64 := make([]int64, len(ids))
		for j := range ids {
			ids64[j] = int64(ids[j])
			if j < len(mask) {
				mask64[j] = int64(mask[j])
			} else {
				mask64[j] = 1
			}
		}
		all[i] = encodedText{ids: ids64, mask: mask64}
		if len(ids64) > maxLen {
			maxLen = len(ids64)
		}
	}
	if maxLen == 0 {
		return nil, fmt.Errorf("all texts tokenized to zero length")
	}

	batchSize := len(texts)
	flatIDs := make([]int64, batchSize*maxLen)
	flatMask := make([]int64, batchSize*maxLen)
	flatType := make([]int64, batchSize*maxLen)
	for i, enc := range all {
		copy(flatIDs[i*maxLen:], enc.ids)
		copy(flatMask[i*maxLen:], enc.mask)
	}
	shape := ort.NewShape(int64(batchSize), int64(maxLen))

	inputIDs, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()
	attnMask, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer attnMask.Destroy()
	typeIDs, err := ort.NewTensor(shape, flatType)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeIDs.Destroy()

	inputs := []ort.Value{inputIDs, attnMask, typeIDs}
	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	data := hidden.GetData()

	// Mean-pool token embeddings over the attention mask, then L2-normalize
	// so dot product equals cosine similarity.
	vecs := make([][]float32, batchSize)
	for b := 0; b < batchSize; b++ {
		vecs[b] = meanPool(data, all[b].mask, b, maxLen, SemanticDims)
	}
	return vecs, nil
}

func meanPool(hidden []float32, mask []int64, batchIdx, seqLen, dims int) []float32 {
	sum := make([]float32, dims)
	var count float32
	base := batchIdx * seqLen * dims
	for t := 0; t < len(mask); t++ {
		if mask[t] == 0 {
			continue
		}
		offset := base + t*dims
		for d := 0; d < dims; d++ {
			sum[d] += hidden[offset+d]
		}
		count++
	}
	if count == 0 {
		count = 1
	}
	var norm float64
	for d := 0; d < dims; d++ {
		sum[d] /= count
		norm += float64(sum[d]) * float64(sum[d])
	}
	if norm > 0 {
		scale := float32(1.0 / math.Sqrt(norm))
		for d := 0; d < dims; d++ {
			sum[d] *= scale
		}
	}
	return sum
}
