package settings

// DefaultMaxLength bounds default_system_prompts when no limit is configured.
const DefaultMaxLength = 2000

const (
	msgRetrieved = "Settings retrieved successfully"
	msgUpdated   = "Settings updated successfully"
	msgReset     = "Settings reset to defaults successfully"

	detailRetrieve = "Failed to retrieve settings"
	detailUpdate   = "Failed to update settings"
	detailReset    = "Failed to reset settings"
)

// Settings is the single user-editable configuration record.
type Settings struct {
	DefaultSystemPrompts string  `json:"default_system_prompts"`
	LastUpdated          *string `json:"last_updated"`
}

// Response wraps every settings endpoint reply.
type Response struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Settings *Settings `json:"settings,omitempty"`
}

// UpdateRequest is the POST /api/settings body.
type UpdateRequest struct {
	DefaultSystemPrompts string `json:"default_system_prompts"`
}
