// Package embedding holds the pieces shared by embedder implementations.
package embedding

import "babyrag/internal/domain"

// Tensorize builds the three [1, L] model inputs for an encoding. Token type
// ids are synthesised as zeros when the tokenizer did not provide them.
func Tensorize(enc domain.Encoding) domain.Tensors {
	typeIDs := enc.TokenTypeIDs
	if len(typeIDs) != len(enc.IDs) {
		typeIDs = make([]int64, len(enc.IDs))
	}
	return domain.Tensors{
		InputIDs:      [][]int64{enc.IDs},
		AttentionMask: [][]int64{enc.AttentionMask},
		TokenTypeIDs:  [][]int64{typeIDs},
	}
}

// MeanPool averages the rows of hidden (flattened [len(mask) * hiddenSize])
// whose attention mask is 1. The divisor is floored at one so a fully masked
// sequence yields a zero vector instead of NaNs.
func MeanPool(hidden []float32, mask []int64, hiddenSize int) domain.Embedding {
	out := make(domain.Embedding, hiddenSize)
	count := 0
	for i, m := range mask {
		if m != 1 {
			continue
		}
		count++
		row := hidden[i*hiddenSize : (i+1)*hiddenSize]
		for j, v := range row {
			out[j] += v
		}
	}
	div := float32(max(1, count))
	for j := range out {
		out[j] /= div
	}
	return out
}
