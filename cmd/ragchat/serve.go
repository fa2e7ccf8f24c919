package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/a-h/ragchat/chunk"
	"github.com/a-h/ragchat/embed"
	"github.com/a-h/ragchat/fetch"
	chatpost "github.com/a-h/ragchat/handlers/chat/post"
	documentscountget "github.com/a-h/ragchat/handlers/documents/count/get"
	healthget "github.com/a-h/ragchat/handlers/health/get"
	"github.com/a-h/ragchat/index"
	"github.com/a-h/ragchat/index/file"
	"github.com/a-h/ragchat/index/rqlite"
	"github.com/a-h/ragchat/pipeline"
	"github.com/a-h/ragchat/synth"
	"github.com/rqlite/gorqlite"
	"github.com/rs/cors"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

type ServeCommand struct {
	OllamaURL       string        `help:"The URL of the Ollama server." env:"OLLAMA_URL" default:"http://127.0.0.1:11434/"`
	EmbeddingModel  string        `help:"The model to use for embeddings." env:"EMBEDDING_MODEL" default:"nomic-embed-text"`
	EmbeddingDim    int           `help:"The vector dimension of the embedding model." env:"EMBEDDING_DIM" default:"768"`
	ChatModel       string        `help:"The model to generate answers with." env:"CHAT_MODEL" default:"llama3"`
	SystemPrompt    string        `help:"A file containing the system prompt to use." env:"SYSTEM_PROMPT" default:""`
	UserPrompt      string        `help:"A file containing the user prompt template to use." env:"USER_PROMPT" default:""`
	Store           string        `help:"The index store to use." env:"STORE" enum:"file,rqlite" default:"file"`
	IndexFile       string        `help:"The path of the file index store." env:"INDEX_FILE" default:"ragchat.index.json"`
	RqliteURL       string        `help:"The URL of the rqlite server." env:"RQLITE_URL" default:"http://localhost:4001"`
	ChunkSize       int           `help:"The chunk size in characters." env:"CHUNK_SIZE" default:"500"`
	ChunkOverlap    int           `help:"The overlap between consecutive chunks in characters." env:"CHUNK_OVERLAP" default:"50"`
	MaxContextChars int           `help:"The maximum size of the context passed to the chat model, in characters." env:"MAX_CONTEXT_CHARS" default:"8000"`
	BackendTimeout  time.Duration `help:"The per-attempt timeout for embedding and generation calls." env:"BACKEND_TIMEOUT" default:"60s"`
	WikipediaURL    string        `help:"The base URL of the Wikipedia API." env:"WIKIPEDIA_URL" default:"https://en.wikipedia.org"`
	TopicsFile      string        `help:"A YAML file listing the corpus topics to ingest." env:"TOPICS_FILE" default:""`
	Reingest        bool          `help:"Rebuild the index at startup even if it is already populated." env:"REINGEST" default:"false"`
	ListenAddr      string        `help:"The address to listen on." env:"LISTEN_ADDR" default:"localhost:9020"`
	TLSCertFile     string        `help:"The TLS certificate file." env:"TLS_CERT_FILE" default:""`
	TLSKeyFile      string        `help:"The TLS key file." env:"TLS_KEY_FILE" default:""`
	LogLevel        string        `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func readFileOrDefault(filename, defaultContent string) (string, error) {
	if filename == "" {
		return defaultContent, nil
	}
	contents, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return string(contents), nil
}

func (c ServeCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)

	systemPrompt, err := readFileOrDefault(c.SystemPrompt, synth.DefaultSystemPrompt())
	if err != nil {
		return fmt.Errorf("failed to read system prompt: %w", err)
	}
	pf := synth.DefaultUserPrompt
	if c.UserPrompt != "" {
		tpl, err := os.ReadFile(c.UserPrompt)
		if err != nil {
			return fmt.Errorf("failed to read user prompt: %w", err)
		}
		pf = func(question, context string) (string, error) {
			return fmt.Sprintf(string(tpl), context, question), nil
		}
	}
	if _, err = pf("hello", "world"); err != nil {
		return fmt.Errorf("invalid prompt template: %w", err)
	}

	splitter, err := chunk.NewSplitter(c.ChunkSize, c.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("invalid chunking configuration: %w", err)
	}

	log.Info("creating LLM clients", slog.String("url", c.OllamaURL))
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

	// Verify the configured dimension against the model before serving.
	// An unreachable backend is retriable later, a mismatch is not.
	if _, err = embedder.EmbedQuery(ctx, "startup dimension probe"); err != nil {
		if errors.Is(err, embed.ErrDimensionMismatch) {
			return fmt.Errorf("embedding model does not match the configured dimension: %w", err)
		}
		log.Warn("embedding backend unavailable at startup", slog.Any("error", err))
	}

	llmc, err := ollama.New(
		ollama.WithModel(c.ChatModel),
		ollama.WithHTTPClient(httpClient),
		ollama.WithServerURL(c.OllamaURL))
	if err != nil {
		return fmt.Errorf("failed to create LLM: %w", err)
	}
	generator := synth.NewLLMGenerator(log, llmc, systemPrompt, c.OllamaURL, httpClient, synth.WithGenerateTimeout(c.BackendTimeout))
	synthesizer := synth.New(log, generator, pf, c.MaxContextChars)

	idx, err := c.openIndex(log)
	if err != nil {
		return err
	}

	coordinator, err := pipeline.New(ctx, log, splitter, embedder, idx, synthesizer, generator.Available)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	count, err := coordinator.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count index entries: %w", err)
	}
	if count == 0 || c.Reingest {
		topics := fetch.DefaultTopics
		if c.TopicsFile != "" {
			if topics, err = fetch.LoadTopics(c.TopicsFile); err != nil {
				return err
			}
		}
		fetcher := fetch.New(log, c.WikipediaURL, httpClient)
		// Populate in the background so health checks are answered
		// immediately. Queries served meanwhile get the empty-index
		// fallback or the previously persisted state.
		go func() {
			if err := populate(context.Background(), fetcher, coordinator, topics); err != nil {
				log.Error("startup ingestion failed", slog.Any("error", err))
			}
		}()
	} else {
		log.Info("index already populated, skipping ingestion", slog.Int("entries", count))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health", healthget.New(log, coordinator))
	mux.Handle("GET /documents/count", documentscountget.New(log, coordinator))
	mux.Handle("POST /chat", chatpost.New(log, coordinator))

	withCORSMux := cors.AllowAll().Handler(mux)

	log.Info("Listening", slog.String("addr", c.ListenAddr))
	s := &http.Server{
		Addr:    c.ListenAddr,
		Handler: withCORSMux,
	}
	if c.TLSCertFile != "" && c.TLSKeyFile != "" {
		log.Info("Enabling TLS mode")
		var cert tls.Certificate
		cert, err = tls.LoadX509KeyPair(c.TLSCertFile, c.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load cert: %w", err)
		}
		s.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		return s.ListenAndServeTLS(c.TLSCertFile, c.TLSKeyFile)
	}
	return s.ListenAndServe()
}

// populate fetches the corpus and replaces the index contents. An
// empty fetch result aborts before ingestion, since replacing a
// populated index with nothing loses the last-good state.
func populate(ctx context.Context, fetcher *fetch.Client, coordinator *pipeline.Coordinator, topics []string) error {
	docs, err := fetcher.Fetch(ctx, topics)
	if err != nil {
		return fmt.Errorf("corpus fetch failed: %w", err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents fetched, leaving the existing index untouched")
	}
	return coordinator.Ingest(ctx, docs)
}

func (c ServeCommand) openIndex(log *slog.Logger) (index.Index, error) {
	switch c.Store {
	case "rqlite":
		log.Info("connecting to database", slog.String("url", c.RqliteURL))
		databaseURL, err := rqlite.ParseURL(c.RqliteURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse rqlite URL: %w", err)
		}
		conn, err := gorqlite.Open(databaseURL.DataSourceName())
		if err != nil {
			return nil, fmt.Errorf("failed to open connection: %w", err)
		}
		log.Info("migrating database schema", slog.String("url", databaseURL.MigrateDatabaseURL()))
		if err = rqlite.Migrate(databaseURL); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return rqlite.New(conn), nil
	default:
		log.Info("opening index file", slog.String("path", c.IndexFile))
		return file.New(log, c.IndexFile, c.EmbeddingDim)
	}
}
