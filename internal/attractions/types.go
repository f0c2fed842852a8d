package attractions

import "encoding/json"

// flexID tolerates providers that send ids as numbers in some revisions and
// strings in others.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// Product is one searchable attraction as the provider returns it. Nested
// objects are pointers so absent fields default instead of panicking.
type Product struct {
	ID                  flexID         `json:"id"`
	Name                string         `json:"name"`
	Slug                string         `json:"slug"`
	ReviewsStats        *ReviewsStats  `json:"reviewsStats"`
	NumericReviewsStats *NumericStats  `json:"numericReviewsStats"`
	PrimaryPhoto        *Photo         `json:"primaryPhoto"`
	RepresentativePrice *ProviderPrice `json:"representativePrice"`
}

type ReviewsStats struct {
	AllReviewsCount int    `json:"allReviewsCount"`
	Percentage      string `json:"percentage"`
}

type NumericStats struct {
	Average float64 `json:"average"`
	Total   int     `json:"total"`
}

type Photo struct {
	Small string `json:"small"`
}

type ProviderPrice struct {
	ChargeAmount *float64 `json:"chargeAmount"`
	Currency     string   `json:"currency"`
}

// Attraction is the normalized per-request record surfaced to callers.
type Attraction struct {
	ID               string          `json:"attraction_id"`
	Name             string          `json:"attraction_name"`
	AllReviewsCount  int             `json:"all_reviews_count"`
	PercentageReview string          `json:"percentage_review"`
	AverageReview    float64         `json:"average_review"`
	TotalReview      int             `json:"total_review"`
	PhotoURL         string          `json:"attraction_photo"`
	Description      *string         `json:"attraction_description"`
	Price            *float64        `json:"attraction_price"`
	Currency         string          `json:"currency"`
	BaseCurrencyCode string          `json:"base_currency"`
	BaseCurrencyDate string          `json:"base_currency_date"`
	AvailableDates   []AvailableDate `json:"available_date"`
	DailyTimings     []Timing        `json:"attraction_daily_timing"`
}

type AvailableDate struct {
	Date string `json:"availability_date"`
}

type Timing struct {
	StartAt string `json:"start_at"`
}
