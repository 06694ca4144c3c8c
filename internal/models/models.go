package models

import "time"

type Account struct {
	ID               string
	Name             string
	Email            string
	PassHash         []byte
	Activated        bool
	Deactivated      bool
	DeactivationDate *time.Time
}

// PendingAccount is the candidate record held in the cache between signup and
// activation. It never reaches the database.
type PendingAccount struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	PassHash []byte `json:"pass_hash"`
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type Device struct {
	ID               string
	UserID           string
	AccessKey        string
	Name             string
	Emoji            string
	Ph               *float64
	Turbidity        *float64
	WaterTemperature *float64
	Risk             RiskLevel
	UpdatedAt        *time.Time
}

// Measurements is the public projection of a device: sensor readings only,
// no identity or credential fields.
type Measurements struct {
	Ph               *float64   `json:"ph"`
	Turbidity        *float64   `json:"turbidity"`
	WaterTemperature *float64   `json:"water_temperature"`
	Risk             RiskLevel  `json:"risk"`
	UpdatedAt        *time.Time `json:"updated_at"`
}

type EmailMessage struct {
	Email string `json:"to"`
	Link  string `json:"link"`
}
