package hybridgo_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hupe1980/hybridgo"
	"github.com/hupe1980/hybridgo/graph"
	"github.com/hupe1980/hybridgo/index"
	"github.com/hupe1980/hybridgo/metadata"
)

// Example_hybridRetrieve demonstrates fusing a vector index and a graph
// store into one ranked result list.
func Example_hybridRetrieve() {
	ctx := context.Background()

	// Vector side: a tiny index with two documents.
	idx, err := index.New(4)
	if err != nil {
		log.Fatal(err)
	}
	_ = idx.Add("planning-notes", []float32{1, 0, 0, 0}, metadata.Document{
		"category": metadata.String("note"),
	})
	_ = idx.Add("meeting-minutes", []float32{0.9, 0.1, 0, 0}, nil)

	// Graph side: the same documents as nodes, scored by text overlap.
	store, err := graph.NewStore(nil)
	if err != nil {
		log.Fatal(err)
	}
	_, _ = store.CreateNodeWithID("planning-notes", graph.LabelDocument, metadata.Document{
		"title": metadata.String("quarterly planning notes"),
	})

	retriever, err := hybridgo.New(
		hybridgo.NewIndexSource(idx),
		hybridgo.NewGraphSource(store),
		hybridgo.WithSourceTimeout(200*time.Millisecond),
	)
	if err != nil {
		log.Fatal(err)
	}

	results, err := retriever.Retrieve(ctx, hybridgo.Query{
		Embedding: []float32{1, 0, 0, 0},
		Text:      "quarterly planning",
	}, 5)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(results[0].ID, results[0].Provenance)
	// Output: planning-notes hybrid
}

// Example_timeTravel demonstrates bitemporal graph traversal: only edges
// valid at the query time contribute neighbors.
func Example_timeTravel() {
	store, err := graph.NewStore(nil)
	if err != nil {
		log.Fatal(err)
	}

	alice, _ := store.CreateNode(graph.LabelPerson, metadata.Document{
		"name": metadata.String("alice"),
	})
	review, _ := store.CreateNode(graph.LabelMeeting, metadata.Document{
		"title": metadata.String("design review"),
		"date":  metadata.String("2024-03-01"),
	})

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	_, _ = store.CreateEdge(alice.ID, review.ID, graph.RelationParticipates, nil, from, &until)

	during := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	after := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	neighbors, _ := store.Neighbors(alice.ID, "", graph.Both, &during)
	fmt.Println("during:", len(neighbors))

	neighbors, _ = store.Neighbors(alice.ID, "", graph.Both, &after)
	fmt.Println("after:", len(neighbors))
	// Output:
	// during: 1
	// after: 0
}
