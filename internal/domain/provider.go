package domain

type Provider struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	DisplayOrder int    `json:"displayOrder"`
}

type NotificationConfig struct {
	AdminEmail                string `json:"admin_email"`
	PushNotificationsEnabled  bool   `json:"push_notifications_enabled"`
	EmailNotificationsEnabled bool   `json:"email_notifications_enabled"`
	SlackNotificationsEnabled bool   `json:"slack_notifications_enabled"`
}

type FormConfig struct {
	FormEnabled     bool   `json:"form_enabled"`
	MaintenanceMode bool   `json:"maintenance_mode"`
	CustomMessage   string `json:"custom_message"`
}

// Accepting reports whether agents may submit orders.
func (c FormConfig) Accepting() bool {
	return c.FormEnabled && !c.MaintenanceMode
}

type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// ZipLookupResult is what the geocoding chain resolved for a ZIP.
type ZipLookupResult struct {
	ZipCode string `json:"zipCode"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Found   bool   `json:"found"`
	Source  string `json:"source,omitempty"`
}

// SyntheticSale is a fabricated demo sale; it never reaches the spreadsheet.
type SyntheticSale struct {
	CustomerName     string `json:"customerName"`
	AgentName        string `json:"agentName"`
	SelectedProvider string `json:"selectedProvider"`
	SelectedPackage  string `json:"selectedPackage"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	City             string `json:"city"`
	State            string `json:"state"`
	Source           string `json:"source"`
}
