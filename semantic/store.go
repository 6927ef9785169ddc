package semantic

import "github.com/mnemoria-ai/mnemoria-go/semantic/store"

// Document and VectorStore are defined in the store package so that
// store implementations do not depend on the memory layer; aliased
// here for callers of the retrieval API.
type (
	Document    = store.Document
	VectorStore = store.VectorStore
)
