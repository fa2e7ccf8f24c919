package models

type HealthGetResponse struct {
	Status                     string `json:"status"`
	DocumentCount              int    `json:"document_count"`
	GenerationBackendAvailable bool   `json:"generation_backend_available"`
}
