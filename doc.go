// Package hybridgo is an embedded hybrid retrieval engine: a vector
// index and a bitemporal property graph queried together.
//
// Features:
//
//   - Vector index with soft deletes, automatic compaction and binary
//     snapshot persistence (local files, S3, MinIO)
//   - Bitemporal property graph with a closed, validated schema and
//     optimistic concurrency control
//   - Concurrent fan-out with per-source timeouts and graceful
//     degradation to partial results
//   - Weighted reciprocal rank fusion with deterministic tie-breaking
//   - Optional maximal marginal relevance reranking
//
// Quick start:
//
//	idx, _ := index.New(384)
//	_ = idx.Add("doc-1", embedding, metadata.Document{
//		"category": metadata.String("note"),
//	})
//
//	store, _ := graph.NewStore(nil) // default schema
//	alice, _ := store.CreateNode(graph.LabelPerson, metadata.Document{
//		"name": metadata.String("alice"),
//	})
//	_ = alice
//
//	retriever, _ := hybridgo.New(
//		hybridgo.NewIndexSource(idx),
//		hybridgo.NewGraphSource(store),
//		hybridgo.WithSourceTimeout(200*time.Millisecond),
//	)
//
//	results, _ := retriever.Retrieve(ctx, hybridgo.Query{
//		Embedding: queryEmbedding,
//		Text:      "quarterly planning",
//	}, 10)
package hybridgo
