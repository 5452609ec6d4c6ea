package ingestion

import "encoding/json"

// RawReview mirrors one line of a provider review file. Fields the pipeline
// does not consume are left out; unknown JSON keys are ignored by decoding.
type RawReview struct {
	HotelID   int64      `json:"hotelId"`
	Platform  string     `json:"platform"`
	HotelName string     `json:"hotelName"`
	Comment   RawComment `json:"comment"`
}

// RawComment is the nested review payload of a raw record. Rating is kept as
// json.Number so the validator owns numeric parsing and range checks.
type RawComment struct {
	HotelReviewID   int64            `json:"hotelReviewId"`
	Rating          json.Number      `json:"rating"`
	RatingText      string           `json:"ratingText"`
	RatingFormatted string           `json:"ratingFormatted"`
	ReviewTitle     string           `json:"reviewTitle"`
	ReviewComments  string           `json:"reviewComments"`
	ReviewDate      string           `json:"reviewDate"`
	ReviewerInfo    *RawReviewerInfo `json:"reviewerInfo"`
}

// RawReviewerInfo carries optional reviewer metadata. When present it must be
// internally consistent; the validator enforces that.
type RawReviewerInfo struct {
	CountryName       string `json:"countryName"`
	DisplayMemberName string `json:"displayMemberName"`
	FlagName          string `json:"flagName"`
	ReviewGroupName   string `json:"reviewGroupName"`
	RoomTypeName      string `json:"roomTypeName"`
	LengthOfStay      int    `json:"lengthOfStay"`
	ReviewedCount     int    `json:"reviewerReviewedCount"`
	IsExpertReviewer  bool   `json:"isExpertReviewer"`
}
