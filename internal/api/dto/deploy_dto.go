package dto

type DeployRequest struct {
	Description string `json:"description" binding:"required"`
	RepoURL     string `json:"repo_url" binding:"required,url"`
}

type DeployResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}
