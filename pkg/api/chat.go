package api

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type ChatResponse struct {
	Response string       `json:"response"`
	Sources  []ChatSource `json:"sources"`
}

type ChatHealthResponse struct {
	Status         string `json:"status"`
	DocumentsReady bool   `json:"documents_ready"`
}
