package client

import (
	"context"

	"github.com/a-h/jsonapi"
	"github.com/a-h/ragchat/models"
)

func New(baseURL string) Client {
	return Client{
		baseURL: baseURL,
	}
}

type Client struct {
	baseURL string
}

func (c Client) ChatPost(ctx context.Context, req models.ChatPostRequest) (resp models.ChatPostResponse, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("chat").String()
	if err != nil {
		return resp, err
	}
	return jsonapi.Post[models.ChatPostRequest, models.ChatPostResponse](ctx, url, req)
}

func (c Client) HealthGet(ctx context.Context) (resp models.HealthGetResponse, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("health").String()
	if err != nil {
		return resp, err
	}
	resp, _, err = jsonapi.Get[models.HealthGetResponse](ctx, url)
	return resp, err
}

func (c Client) DocumentsCountGet(ctx context.Context) (resp models.DocumentsCountGetResponse, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("documents", "count").String()
	if err != nil {
		return resp, err
	}
	resp, _, err = jsonapi.Get[models.DocumentsCountGetResponse](ctx, url)
	return resp, err
}
