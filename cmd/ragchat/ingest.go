package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/a-h/ragchat/chunk"
	"github.com/a-h/ragchat/embed"
	"github.com/a-h/ragchat/fetch"
	"github.com/a-h/ragchat/pipeline"
	"github.com/a-h/ragchat/synth"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

type IngestCommand struct {
	OllamaURL      string        `help:"The URL of the Ollama server." env:"OLLAMA_URL" default:"http://127.0.0.1:11434/"`
	EmbeddingModel string        `help:"The model to use for embeddings." env:"EMBEDDING_MODEL" default:"nomic-embed-text"`
	EmbeddingDim   int           `help:"The vector dimension of the embedding model." env:"EMBEDDING_DIM" default:"768"`
	ChatModel      string        `help:"The model to generate answers with." env:"CHAT_MODEL" default:"llama3"`
	Store          string        `help:"The index store to use." env:"STORE" enum:"file,rqlite" default:"file"`
	IndexFile      string        `help:"The path of the file index store." env:"INDEX_FILE" default:"ragchat.index.json"`
	RqliteURL      string        `help:"The URL of the rqlite server." env:"RQLITE_URL" default:"http://localhost:4001"`
	ChunkSize      int           `help:"The chunk size in characters." env:"CHUNK_SIZE" default:"500"`
	ChunkOverlap   int           `help:"The overlap between consecutive chunks in characters." env:"CHUNK_OVERLAP" default:"50"`
	BackendTimeout time.Duration `help:"The per-attempt timeout for embedding calls." env:"BACKEND_TIMEOUT" default:"60s"`
	WikipediaURL   string        `help:"The base URL of the Wikipedia API." env:"WIKIPEDIA_URL" default:"https://en.wikipedia.org"`
	TopicsFile     string        `help:"A YAML file listing the corpus topics to ingest." env:"TOPICS_FILE" default:""`
	LogLevel       string        `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c IngestCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)

	splitter, err := chunk.NewSplitter(c.ChunkSize, c.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("invalid chunking configuration: %w", err)
	}

	httpClient := &http.Client{}
	ec, err := ollama.New(
		ollama.WithModel(c.EmbeddingModel),
		ollama.WithHTTPClient(httpClient),
		ollama.WithServerURL(c.OllamaURL))
	if err != nil {
		return fmt.Errorf("failed to create embedding client: %w", err)
	}
	emb, err := embeddings.NewEmbedder(ec)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	embedder := embed.New(log, emb, c.EmbeddingDim, embed.WithTimeout(c.BackendTimeout))

	llmc, err := ollama.New(
		ollama.WithModel(c.ChatModel),
		ollama.WithHTTPClient(httpClient),
		ollama.WithServerURL(c.OllamaURL))
	if err != nil {
		return fmt.Errorf("failed to create LLM: %w", err)
	}
	generator := synth.NewLLMGenerator(log, llmc, synth.DefaultSystemPrompt(), c.OllamaURL, httpClient)
	synthesizer := synth.New(log, generator, synth.DefaultUserPrompt, 0)

	idx, err := ServeCommand{Store: c.Store, IndexFile: c.IndexFile, RqliteURL: c.RqliteURL, EmbeddingDim: c.EmbeddingDim}.openIndex(log)
	if err != nil {
		return err
	}

	coordinator, err := pipeline.New(ctx, log, splitter, embedder, idx, synthesizer, generator.Available)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	topics := fetch.DefaultTopics
	if c.TopicsFile != "" {
		if topics, err = fetch.LoadTopics(c.TopicsFile); err != nil {
			return err
		}
	}
	docs, err := fetch.New(log, c.WikipediaURL, httpClient).Fetch(ctx, topics)
	if err != nil {
		return fmt.Errorf("corpus fetch failed: %w", err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents fetched, check the network connection")
	}

	if err = coordinator.Ingest(ctx, docs); err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	count, err := coordinator.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %d documents into %d chunks.\n", len(docs), count)
	return nil
}
