package types

// LoadModelRequest is the body of POST /v1/models/load.
type LoadModelRequest struct {
	// example: qwen2.5-0.5b-instruct-q4_k_m
	Model string `json:"model" example:"qwen2.5-0.5b-instruct-q4_k_m"`
	// One of chat, embedding, reranker.
	// example: chat
	Type string `json:"type" example:"chat"`
}

// UnloadModelRequest is the body of POST /v1/models/unload.
type UnloadModelRequest struct {
	Model string `json:"model" example:"qwen2.5-0.5b-instruct-q4_k_m"`
}

// MessageResponse is the success payload of the management endpoints.
type MessageResponse struct {
	// example: Model loaded successfully
	Message string `json:"message" example:"Model loaded successfully"`
}

// ErrorResponse is the flat error payload of the management endpoints.
type ErrorResponse struct {
	// example: Model not loaded
	Error string `json:"error" example:"Model not loaded"`
}

// SessionStatus summarizes one active chat session for /status.
type SessionStatus struct {
	// example: 3f2b8c1e-6d7a-4e0b-9a51-2c7d0f4e8b11
	ID string `json:"id" example:"3f2b8c1e-6d7a-4e0b-9a51-2c7d0f4e8b11"`
	// example: qwen2.5-0.5b-instruct-q4_k_m.gguf
	Model string `json:"model" example:"qwen2.5-0.5b-instruct-q4_k_m.gguf"`
	// example: 1700000000
	Created int64 `json:"created" example:"1700000000"`
	// Turns kept in the session history.
	// example: 4
	Turns int `json:"turns" example:"4"`
}

// InstanceStatus summarizes one cache entry for /status.
type InstanceStatus struct {
	// example: qwen2.5-0.5b-instruct-q4_k_m.gguf
	Name string `json:"name"`
	// Resolved artifact path.
	Path string `json:"path"`
	// example: chat
	Type Category `json:"type"`
	// loading, ready or failed.
	// example: ready
	State string `json:"state" example:"ready"`
	// Last successful acquisition (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Instances []InstanceStatus `json:"instances"`
	// Whether an inference engine is compiled into this binary.
	EngineAvailable bool `json:"engine_available"`
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// example: 1
	LoadFailuresTotal uint64 `json:"load_failures_total" example:"1"`
	// example: 5
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
	// example: 2
	ActiveSessions int             `json:"active_sessions" example:"2"`
	Sessions       []SessionStatus `json:"sessions"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
