package models

type ChatPostRequest struct {
	Text string `json:"text"`
}

// ChatImageHeader carries one image URL per value on /chat responses.
const ChatImageHeader = "X-Image-URL"

// ChatAnswerImageTrailer is sent as a trailer once the answer has been
// streamed, with one URL per value for each image marker in the answer text.
const ChatAnswerImageTrailer = "X-Answer-Image-URL"
