package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/signalbrief/trends-pipeline/internal/trends"
)

// Feeds a saved generation response through the trend parser and prints
// what it extracts. Useful for checking how a new prompt revision parses
// before deploying it:
//
//	go run ./cmd/test-parser response.txt
func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: test-parser <response-file>")
		os.Exit(1)
	}

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	entities, usedFallback := trends.ParseTrends(string(raw))

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Parsed %d trend entities (fallback: %v)\n", len(entities), usedFallback)
	fmt.Println(strings.Repeat("=", 70))

	for i, entity := range entities {
		fmt.Printf("\n[%d] %s\n", i+1, entity.Header)
		fmt.Printf("    Sentiment: %s\n", entity.Sentiment)
		fmt.Printf("    Context:   %s\n", entity.Context)
		if len(entity.SubTopics) > 0 {
			fmt.Printf("    Sub-topics: %s\n", strings.Join(entity.SubTopics, ", "))
		}
		for _, example := range entity.ExampleTweets {
			fmt.Printf("    Example: %q by %s (@%s) likes=%d replies=%d retweets=%d\n",
				example.Text, example.AuthorName, example.Handle,
				example.Likes, example.Replies, example.Retweets)
		}
	}
}
