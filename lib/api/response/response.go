package response

type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func OK() Response {
	return Response{Status: "ok"}
}

func Error(msg string) Response {
	return Response{Status: "error", Error: msg}
}
