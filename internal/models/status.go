package models

// SystemStatus summarizes the knowledge base.
type SystemStatus struct {
	Documents      int64              `json:"documents"`
	Fragments      int64              `json:"fragments"`
	ByStatus       map[Status]int64   `json:"documents_by_status"`
	VectorStore    *VectorStoreStatus `json:"vector_store"`
	DiskUsageBytes int64              `json:"disk_usage_bytes"`
}

// VectorStoreStatus describes the vector collection, or why it is unavailable.
type VectorStoreStatus struct {
	Collection string `json:"collection"`
	Ready      bool   `json:"ready"`
	Points     int64  `json:"points_count"`
	Dimensions int    `json:"dimensions,omitempty"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
}
