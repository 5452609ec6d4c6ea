package ingestion

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// fixedNow pins the validator clock so age checks are deterministic.
var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	v := NewValidator(20)
	v.now = func() time.Time { return fixedNow }
	return v
}

func validRawReview() RawReview {
	return RawReview{
		HotelID:   10984,
		Platform:  "agoda",
		HotelName: "Oscar Saigon Hotel",
		Comment: RawComment{
			HotelReviewID:  948353737,
			Rating:         json.Number("6.4"),
			RatingText:     "Good",
			ReviewTitle:    "Perfect location",
			ReviewComments: "Hotel was fine",
			ReviewDate:     "2025-04-10T05:37:00+07:00",
		},
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(*RawReview)
		wantField string
	}{
		{
			name:   "valid record",
			mutate: func(r *RawReview) {},
		},
		{
			name:      "missing hotel id",
			mutate:    func(r *RawReview) { r.HotelID = 0 },
			wantField: "hotelId",
		},
		{
			name:      "negative hotel id",
			mutate:    func(r *RawReview) { r.HotelID = -3 },
			wantField: "hotelId",
		},
		{
			name:      "missing platform",
			mutate:    func(r *RawReview) { r.Platform = "" },
			wantField: "platform",
		},
		{
			name:      "unknown platform",
			mutate:    func(r *RawReview) { r.Platform = "tripadvisor" },
			wantField: "platform",
		},
		{
			name:      "missing review id",
			mutate:    func(r *RawReview) { r.Comment.HotelReviewID = 0 },
			wantField: "comment.hotelReviewId",
		},
		{
			name:      "rating missing",
			mutate:    func(r *RawReview) { r.Comment.Rating = "" },
			wantField: "comment.rating",
		},
		{
			name:      "rating not numeric",
			mutate:    func(r *RawReview) { r.Comment.Rating = json.Number("great") },
			wantField: "comment.rating",
		},
		{
			name:      "rating above scale",
			mutate:    func(r *RawReview) { r.Comment.Rating = json.Number("10.5") },
			wantField: "comment.rating",
		},
		{
			name:      "rating below zero",
			mutate:    func(r *RawReview) { r.Comment.Rating = json.Number("-1") },
			wantField: "comment.rating",
		},
		{
			name:      "title too long",
			mutate:    func(r *RawReview) { r.Comment.ReviewTitle = strings.Repeat("x", maxTitleLen+1) },
			wantField: "comment.reviewTitle",
		},
		{
			name:      "comments too long",
			mutate:    func(r *RawReview) { r.Comment.ReviewComments = strings.Repeat("x", maxCommentsLen+1) },
			wantField: "comment.reviewComments",
		},
		{
			name:      "date missing",
			mutate:    func(r *RawReview) { r.Comment.ReviewDate = "" },
			wantField: "comment.reviewDate",
		},
		{
			name:      "date unparseable",
			mutate:    func(r *RawReview) { r.Comment.ReviewDate = "April 10th" },
			wantField: "comment.reviewDate",
		},
		{
			name:      "date in the future",
			mutate:    func(r *RawReview) { r.Comment.ReviewDate = "2031-01-01" },
			wantField: "comment.reviewDate",
		},
		{
			name:      "date too old",
			mutate:    func(r *RawReview) { r.Comment.ReviewDate = "1999-01-01" },
			wantField: "comment.reviewDate",
		},
		{
			name: "negative length of stay",
			mutate: func(r *RawReview) {
				r.Comment.ReviewerInfo = &RawReviewerInfo{LengthOfStay: -1}
			},
			wantField: "comment.reviewerInfo.lengthOfStay",
		},
		{
			name: "negative reviewed count",
			mutate: func(r *RawReview) {
				r.Comment.ReviewerInfo = &RawReviewerInfo{ReviewedCount: -1}
			},
			wantField: "comment.reviewerInfo.reviewerReviewedCount",
		},
	}

	validator := newTestValidator()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw := validRawReview()
			tc.mutate(&raw)

			violations := validator.Validate(&raw)
			if tc.wantField == "" {
				if len(violations) != 0 {
					t.Errorf("expected valid record, got violations: %v", violations)
				}
				return
			}

			found := false
			for _, v := range violations {
				if v.Field == tc.wantField {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected violation on %q, got: %v", tc.wantField, violations)
			}
		})
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	raw := validRawReview()
	raw.HotelID = 0
	raw.Platform = ""
	raw.Comment.Rating = json.Number("99")

	violations := newTestValidator().Validate(&raw)
	if len(violations) < 3 {
		t.Errorf("expected at least 3 violations, got %d: %v", len(violations), violations)
	}
}

func TestParseReviewDate(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "rfc3339", input: "2025-04-10T05:37:00+07:00"},
		{name: "datetime", input: "2025-04-10 05:37:00"},
		{name: "date only", input: "2025-04-10"},
		{name: "surrounding whitespace", input: "  2025-04-10  "},
		{name: "unsupported", input: "10/04/2025", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseReviewDate(tc.input)
			if tc.wantErr && err == nil {
				t.Errorf("expected error for %q, got nil", tc.input)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error for %q: %v", tc.input, err)
			}
		})
	}
}
