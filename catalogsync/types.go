package catalogsync

type StatusResponse struct {
	HistoryEnabled    bool             `json:"historyEnabled"`
	LastRun           *SyncRunResponse `json:"lastRun"`
	LastSuccessSyncAt *string          `json:"lastSuccessSyncAt"`
}

type SyncRunResponse struct {
	ID            uint    `json:"id"`
	Status        string  `json:"status"`
	StartedAt     *string `json:"startedAt"`
	FinishedAt    *string `json:"finishedAt"`
	DurationMs    int64   `json:"durationMs"`
	RecordsSynced int     `json:"recordsSynced"`
	ErrorCount    int     `json:"errorCount"`
	TriggeredBy   string  `json:"triggeredBy"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Errors []SyncErrorResponse `json:"errors"`
}

type SyncErrorResponse struct {
	ID        uint   `json:"id"`
	SKU       string `json:"sku"`
	ItemName  string `json:"itemName"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncPubSubPayload struct {
	RunId       uint   `json:"run_id"`
	TriggeredBy string `json:"triggered_by"`
}
