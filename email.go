package sessionauth

import "context"

// Job names for the email queue
const (
	JobSendVerificationEmail  = "sendVerificationEmail"
	JobSendPasswordResetEmail = "sendPasswordResetEmail"
)

// VerificationEmailJob is the payload of a sendVerificationEmail job
type VerificationEmailJob struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Code  string `json:"code"`
}

// PasswordResetEmailJob is the payload of a sendPasswordResetEmail job
type PasswordResetEmailJob struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token"`
}

// Enqueuer hands email jobs to the background queue. Handlers never send
// email inline.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any) (string, error)
}
