package domain

// Chat roles understood by the completion backend.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ChatMessage is the provider-agnostic chat message shape passed from the
// orchestrator to the AI gateway. History is always ordered oldest first.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
