package handler

// JSONResult is the envelope of JSON answers served outside /api, such as
// scripted QR seeding.
type JSONResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func JSONOK(data any) JSONResult {
	return JSONResult{OK: true, Data: data}
}

func JSONError(message string) JSONResult {
	return JSONResult{Error: message}
}
