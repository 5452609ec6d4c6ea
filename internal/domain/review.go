package domain

import "time"

// Review represents a normalized hotel review loaded from a provider file.
// Uniqueness is enforced on the business key (provider_code, provider_review_id);
// a second record carrying the same key is a duplicate outcome, not an error.
// Rows are never mutated by the pipeline after insert.
type Review struct {
	ID               string    `gorm:"type:text;primaryKey" json:"id"`
	ProviderCode     string    `gorm:"type:text;not null;index:idx_reviews_business_key,unique" json:"provider_code"`
	ProviderReviewID int64     `gorm:"not null;index:idx_reviews_business_key,unique" json:"provider_review_id"`
	HotelID          int64     `gorm:"not null;index:idx_reviews_hotel" json:"hotel_id"`
	HotelName        string    `gorm:"type:text" json:"hotel_name"`
	Rating           float64   `json:"rating"`
	NormalizedRating float64   `json:"normalized_rating"`
	RatingText       string    `gorm:"type:text" json:"rating_text,omitempty"`
	Title            string    `gorm:"type:text" json:"title,omitempty"`
	Comments         string    `gorm:"type:text" json:"comments,omitempty"`
	ReviewDate       time.Time `gorm:"index:idx_reviews_date" json:"review_date"`
	ReviewerCountry  string    `gorm:"type:text" json:"reviewer_country,omitempty"`
	ReviewerName     string    `gorm:"type:text" json:"reviewer_name,omitempty"`
	ReviewerGroup    string    `gorm:"type:text" json:"reviewer_group,omitempty"`
	RoomType         string    `gorm:"type:text" json:"room_type,omitempty"`
	LengthOfStay     int       `json:"length_of_stay"`
	// ContentHash is an MD5 over the normalized comment text, kept for
	// near-duplicate detection by downstream reporting.
	ContentHash string    `gorm:"type:text;index:idx_reviews_content_hash" json:"content_hash"`
	SourceKey   string    `gorm:"type:text" json:"source_key"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for Review.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Review) TableName() string {
	return "reviews"
}
