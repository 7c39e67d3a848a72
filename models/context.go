package models

type ContextPostRequest struct {
	Text string `json:"text"`
}

type ContextPostResponse struct {
	Results []ContextDocument `json:"results"`
}

type ContextDocument struct {
	Text   string  `json:"text"`
	Score  float32 `json:"score"`
	Source string  `json:"source"`
}
