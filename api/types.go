package api

// MessageResponse is the body of GET /.
type MessageResponse struct {
	Message string `json:"message"`
}

// PredictResponse is the body of a successful POST /predict.
type PredictResponse struct {
	GeneratedText string `json:"generated_text"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
