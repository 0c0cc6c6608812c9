package dto

type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports "degraded" when the database ping fails; the live
// backend is "memory" or "redis".
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
	Live      string `json:"live"`
	AppCount  int    `json:"app_count"`
}
