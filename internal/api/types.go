package api

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// PostSubmission is one post sent to POST /home.
type PostSubmission struct {
	Body      string
	UserName  string
	AvatarURL string
	// Image is optional. ImageName is only used as the part's filename.
	Image     []byte
	ImageName string
}

// SubmitResult describes where the server redirected after a submission.
type SubmitResult struct {
	Status   int    `json:"status"`
	Location string `json:"location"`
}
