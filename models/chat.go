package models

type ChatPostRequest struct {
	// Question to answer from the indexed corpus.
	Question string `json:"question"`

	// TopK is the number of passages to retrieve. Zero means use the
	// server default.
	TopK int `json:"top_k,omitempty"`
}

type ChatPostResponse struct {
	Answer string `json:"answer"`

	// Sources lists the originating documents of the passages used,
	// formatted as "Title (url)", most relevant first.
	Sources []string `json:"sources"`
}
