package domain

import "time"

// Provider codes recognized by the ingestion pipeline. Files carrying any
// other platform value fail validation instead of auto-registering noise.
const (
	ProviderAgoda   = "agoda"
	ProviderBooking = "booking"
	ProviderExpedia = "expedia"
)

// KnownProviderCodes returns the fixed set of provider codes accepted by the
// validator.
// Parameters: none.
// Returns:
//   - []string: recognized provider codes.
func KnownProviderCodes() []string {
	return []string{ProviderAgoda, ProviderBooking, ProviderExpedia}
}

// IsKnownProviderCode reports whether code is one of the recognized providers.
// Parameters:
//   - code: lowercased provider code.
// Returns:
//   - bool: true if the code is recognized.
func IsKnownProviderCode(code string) bool {
	switch code {
	case ProviderAgoda, ProviderBooking, ProviderExpedia:
		return true
	}
	return false
}

// Provider represents an external review provider and its normalization
// parameters. Rows are auto-created with defaults the first time a valid
// record for the code is seen.
type Provider struct {
	ID          string      `gorm:"type:text;primaryKey" json:"id"`
	Code        string      `gorm:"type:text;not null;uniqueIndex:idx_providers_code" json:"code"`
	Name        string      `gorm:"type:text;not null" json:"name"`
	Active      bool        `gorm:"default:true" json:"active"`
	RatingScale float64     `gorm:"default:10" json:"rating_scale"`
	Languages   StringArray `gorm:"type:text" json:"languages"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Provider.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Provider) TableName() string {
	return "providers"
}
