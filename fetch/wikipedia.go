// Package fetch retrieves raw article text from the Wikipedia REST
// API. It is the corpus source collaborator: its output contract is a
// sequence of documents keyed by title and URL.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/a-h/ragchat/models"
	"gopkg.in/yaml.v3"
)

// DefaultTopics is the corpus used when no topics file is supplied.
var DefaultTopics = []string{
	"Artificial Intelligence",
	"Machine Learning",
	"Natural Language Processing",
	"Deep Learning",
	"Computer Vision",
	"Python Programming",
	"Data Science",
	"Neural Networks",
	"Transformer Models",
	"Large Language Models",
}

// LoadTopics reads a YAML list of topic names.
func LoadTopics(name string) (topics []string, err error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("fetch: failed to read topics file: %w", err)
	}
	if err = yaml.Unmarshal(data, &topics); err != nil {
		return nil, fmt.Errorf("fetch: failed to parse topics file: %w", err)
	}
	return topics, nil
}

func New(log *slog.Logger, baseURL string, httpClient *http.Client) *Client {
	return &Client{
		log:        log,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

type Client struct {
	log        *slog.Logger
	baseURL    string
	httpClient *http.Client
}

type summaryResponse struct {
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// Fetch downloads the page summary for each topic. Topics that cannot
// be fetched or have no extract are skipped with a warning, so one
// unavailable page does not lose the rest of the corpus.
func (c *Client) Fetch(ctx context.Context, topics []string) (docs []models.Document, err error) {
	for _, topic := range topics {
		if ctx.Err() != nil {
			return docs, ctx.Err()
		}
		doc, ok, err := c.fetchTopic(ctx, topic)
		if err != nil {
			c.log.Warn("failed to fetch topic", slog.String("topic", topic), slog.Any("error", err))
			continue
		}
		if !ok {
			c.log.Warn("topic has no extract, skipping", slog.String("topic", topic))
			continue
		}
		c.log.Info("fetched topic", slog.String("title", doc.Title), slog.Int("length", len(doc.Text)))
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *Client) fetchTopic(ctx context.Context, topic string) (doc models.Document, ok bool, err error) {
	u := fmt.Sprintf("%s/api/rest_v1/page/summary/%s", c.baseURL, url.PathEscape(strings.ReplaceAll(topic, " ", "_")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return doc, false, fmt.Errorf("fetch: failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return doc, false, fmt.Errorf("fetch: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return doc, false, fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}
	var summary summaryResponse
	if err = json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return doc, false, fmt.Errorf("fetch: failed to decode summary: %w", err)
	}
	if summary.Extract == "" {
		return doc, false, nil
	}
	doc = models.Document{
		Title: summary.Title,
		URL:   summary.ContentURLs.Desktop.Page,
		Text:  summary.Extract,
	}
	if doc.URL == "" {
		doc.URL = u
	}
	return doc, true, nil
}
