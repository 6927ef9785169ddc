// Package semantic is the retrieval layer of the memory subsystem.
//
// Per identity it maintains two vector collections:
//   - original: one document per dialogue message, raw text
//   - compressed: one document per event, the collaborator's summary
//
// Architecture:
//   - VectorStore: two-method storage capability (chromem-backed
//     persistent store, or the in-memory substring fallback)
//   - Embedder: text-to-vector conversion (ONNX locally, mock in tests)
//   - Memory: per-identity collection pairs, hybrid search, recall
//     formatting, short-TTL recall cache
//   - Reranker: LLM-driven reordering of combined results, fail-closed
//
// The store implementation is chosen once, at construction, by probing
// the embedding backend; every caller sees only the VectorStore
// interface.
package semantic
