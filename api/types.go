package api

import "fmt"

// StatusError is an error response from the server.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return "something went wrong, please see the server logs for details"
	}
}

// SummarizeRequest is the request passed to [Client.Summarize].
type SummarizeRequest struct {
	Text string `json:"text"`
}

// SummarizeResponse is the response returned by [Client.Summarize].
type SummarizeResponse struct {
	Summary string `json:"summary"`
	Bucket  string `json:"bucket"`
	Tokens  int    `json:"tokens"`
}

// InfoResponse describes the model being served.
type InfoResponse struct {
	Buckets      []string `json:"buckets"`
	SourceVocab  int      `json:"source_vocab"`
	TargetVocab  int      `json:"target_vocab"`
	Layers       int      `json:"layers"`
	HiddenUnits  int      `json:"hidden_units"`
	Parameters   int      `json:"parameters"`
	GlobalStep   int      `json:"global_step"`
	LearningRate float64  `json:"learning_rate"`
}
