// Package memory implements the cross-agent shared memory store
// ("CASS"): content-addressed knowledge entries,
// optionally embedded as vectors, searchable by cosine similarity or
// plain substring match, with adaptive importance-based compaction.
//
// Semantic search never loads the whole table into memory. It scans
// storage.MemoryModel rows in cfg.SearchBatchSize batches, maintaining
// a bounded top-K window, and may exit early once at least half of the
// eligible rows have been scanned and the current K-th score clears
// cfg.EarlyTerminationSimilarity — a permitted optimization, not a
// correctness requirement, so a small store is always scanned in full.
//
// Embeddings are produced by a pluggable Provider (OpenAI, Ollama, or
// NoneProvider). With no provider configured, SemanticSearchByText
// degrades to a content substring search rather than failing outright.
package memory
