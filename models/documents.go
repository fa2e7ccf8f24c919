package models

// Document is the raw input to ingestion. It is not stored: only the
// chunks derived from it are persisted into the index.
type Document struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

type DocumentsCountGetResponse struct {
	Count int `json:"count"`
}
