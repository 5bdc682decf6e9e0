package dto

// BackfillRequest triggers an asynchronous aggregate recomputation.
type BackfillRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

// BackfillResponse acknowledges the accepted job.
type BackfillResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
	From   string `json:"from"`
	To     string `json:"to"`
}
