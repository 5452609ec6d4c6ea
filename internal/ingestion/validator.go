package ingestion

import (
	"fmt"
	"strings"
	"time"

	"github.com/gobelinus/review-system-microservice-sub000/internal/domain"
)

const (
	maxTitleLen    = 500
	maxCommentsLen = 5000
	minRating      = 0.0
	maxRating      = 10.0
)

// reviewDateLayouts are the accepted review date formats, tried in order.
var reviewDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Violation describes one validation failure on a raw record.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// String renders the violation as "field: message".
// Parameters: none.
// Returns:
//   - string: rendered violation.
func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// Validator checks raw records against the pipeline's data-quality rules.
// It is a pure function over one record, no I/O.
type Validator struct {
	maxReviewAge time.Duration
	now          func() time.Time
}

// NewValidator creates a Validator.
// Parameters:
//   - maxReviewAgeYears: oldest acceptable review age; values below 1 fall
//     back to 20 years.
// Returns:
//   - *Validator: initialized validator.
func NewValidator(maxReviewAgeYears int) *Validator {
	if maxReviewAgeYears < 1 {
		maxReviewAgeYears = 20
	}
	return &Validator{
		maxReviewAge: time.Duration(maxReviewAgeYears) * 365 * 24 * time.Hour,
		now:          time.Now,
	}
}

// Validate collects every violation on the record instead of stopping at the
// first, so one log line documents the whole problem. An empty result means
// the record is valid.
// Parameters:
//   - raw: parsed record to check.
// Returns:
//   - []Violation: all rule violations; empty when valid.
func (v *Validator) Validate(raw *RawReview) []Violation {
	var violations []Violation
	add := func(field, format string, args ...interface{}) {
		violations = append(violations, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if raw.HotelID <= 0 {
		add("hotelId", "must be present and positive, got %d", raw.HotelID)
	}

	code := strings.ToLower(strings.TrimSpace(raw.Platform))
	if code == "" {
		add("platform", "must be present")
	} else if !domain.IsKnownProviderCode(code) {
		add("platform", "unknown provider %q, expected one of %s", raw.Platform, strings.Join(domain.KnownProviderCodes(), ", "))
	}

	if raw.Comment.HotelReviewID <= 0 {
		add("comment.hotelReviewId", "must be present and positive, got %d", raw.Comment.HotelReviewID)
	}

	if len([]rune(raw.Comment.ReviewTitle)) > maxTitleLen {
		add("comment.reviewTitle", "exceeds %d characters", maxTitleLen)
	}
	if len([]rune(raw.Comment.ReviewComments)) > maxCommentsLen {
		add("comment.reviewComments", "exceeds %d characters", maxCommentsLen)
	}

	if raw.Comment.Rating == "" {
		add("comment.rating", "must be present")
	} else if rating, err := raw.Comment.Rating.Float64(); err != nil {
		add("comment.rating", "must be numeric, got %q", raw.Comment.Rating.String())
	} else if rating < minRating || rating > maxRating {
		add("comment.rating", "must be within [%.1f, %.1f], got %.2f", minRating, maxRating, rating)
	}

	v.validateReviewDate(raw.Comment.ReviewDate, add)

	if info := raw.Comment.ReviewerInfo; info != nil {
		if info.LengthOfStay < 0 {
			add("comment.reviewerInfo.lengthOfStay", "must not be negative, got %d", info.LengthOfStay)
		}
		if info.ReviewedCount < 0 {
			add("comment.reviewerInfo.reviewerReviewedCount", "must not be negative, got %d", info.ReviewedCount)
		}
	}

	return violations
}

func (v *Validator) validateReviewDate(value string, add func(field, format string, args ...interface{})) {
	if strings.TrimSpace(value) == "" {
		add("comment.reviewDate", "must be present")
		return
	}

	parsed, err := ParseReviewDate(value)
	if err != nil {
		add("comment.reviewDate", "unparseable date %q", value)
		return
	}

	now := v.now()
	if parsed.After(now) {
		add("comment.reviewDate", "must not be in the future, got %s", value)
	}
	if parsed.Before(now.Add(-v.maxReviewAge)) {
		add("comment.reviewDate", "older than the maximum accepted age, got %s", value)
	}
}

// ParseReviewDate parses a review date under the accepted layouts.
// Parameters:
//   - value: raw date string from the provider file.
// Returns:
//   - time.Time: parsed timestamp.
//   - error: non-nil when no accepted layout matches.
func ParseReviewDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range reviewDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q matches no accepted format", value)
}
