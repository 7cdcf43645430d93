package main

// apiJob mirrors the daemon's job representation on the wire.
type apiJob struct {
	ID             string `json:"id"`
	SourceAsset    string `json:"source_asset"`
	TargetLanguage string `json:"target_language"`
	Status         string `json:"status"`
	Stage          string `json:"stage,omitempty"`
	OutputAsset    string `json:"output_asset,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	CompletedAt    string `json:"completed_at,omitempty"`
}

type apiLogEntry struct {
	Stage     string `json:"stage"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

type apiHealth struct {
	Healthy  bool `json:"healthy"`
	Database struct {
		DBPath         string `json:"db_path"`
		DatabaseExists bool   `json:"database_exists"`
		Healthy        bool   `json:"healthy"`
		Error          string `json:"error,omitempty"`
	} `json:"database"`
	Queue struct {
		Total   int `json:"total"`
		Pending int `json:"pending"`
		Running int `json:"running"`
		Done    int `json:"done"`
		Failed  int `json:"failed"`
	} `json:"queue"`
	Stages []struct {
		Name   string `json:"name"`
		Ready  bool   `json:"ready"`
		Detail string `json:"detail,omitempty"`
	} `json:"stages"`
}
