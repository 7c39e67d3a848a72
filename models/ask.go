package models

type AskPostRequest struct {
	// Text of the question.
	Text string `json:"text"`
}

type AskPostResponse struct {
	// Answer with image markers removed.
	Answer string `json:"answer"`
	// Images are the URLs of the images the answer refers to.
	Images []string `json:"images"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
