package main

import (
	"context"
	"fmt"

	"github.com/a-h/ragchat"
)

type VersionCommand struct {
}

func (c VersionCommand) Run(ctx context.Context) (err error) {
	fmt.Println(ragchat.Version)
	return nil
}
