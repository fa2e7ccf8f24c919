package main

import (
	"context"
	"fmt"

	"github.com/a-h/ragchat/client"
	"github.com/a-h/ragchat/models"
)

type AskCommand struct {
	RAGChatURL string `help:"The URL of the RAG chat server." env:"RAG_CHAT_URL" default:"http://localhost:9020"`
	Question   string `help:"The question to ask." arg:""`
	TopK       int    `help:"The number of passages to retrieve." default:"0"`
}

func (c AskCommand) Run(ctx context.Context) (err error) {
	rcc := client.New(c.RAGChatURL)
	resp, err := rcc.ChatPost(ctx, models.ChatPostRequest{
		Question: c.Question,
		TopK:     c.TopK,
	})
	if err != nil {
		return err
	}
	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, source := range resp.Sources {
			fmt.Printf("  - %s\n", source)
		}
	}
	return nil
}
