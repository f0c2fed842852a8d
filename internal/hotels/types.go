package hotels

// SearchHotel is one hotel as the provider's search endpoint returns it.
type SearchHotel struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	ReviewScoreWord string          `json:"reviewScoreWord"`
	ReviewScore     float64         `json:"reviewScore"`
	PriceBreakdown  *PriceBreakdown `json:"priceBreakdown"`
	Checkin         *TimeWindow     `json:"checkin"`
	Checkout        *TimeWindow     `json:"checkout"`
}

type PriceBreakdown struct {
	GrossPrice *GrossPrice `json:"grossPrice"`
}

type GrossPrice struct {
	Value    *float64 `json:"value"`
	Currency string   `json:"currency"`
}

type TimeWindow struct {
	FromTime  string `json:"fromTime"`
	UntilTime string `json:"untilTime"`
}

// ScorePercentage is one entry of the provider's review-score breakdown.
type ScorePercentage struct {
	Percent *float64 `json:"percent"`
	Count   *int     `json:"count"`
}

// FullDetail is the composed booking URL / address / photo lookup, cached
// per hotel.
type FullDetail struct {
	BookingURL string `json:"hotel_booking_url"`
	Address    string `json:"hotel_address"`
	PhotoURL   string `json:"hotel_photo_url"`
}

// Bucket is one of the five fixed review-score categories. Both fields are
// null when the upstream breakdown is shorter than five entries.
type Bucket struct {
	Percent *float64 `json:"percent"`
	Count   *int     `json:"count"`
}

// ScoreBuckets always carries exactly five named categories.
type ScoreBuckets struct {
	Wonderful Bucket `json:"Wonderful"`
	Good      Bucket `json:"Good"`
	Okay      Bucket `json:"Okay"`
	Poor      Bucket `json:"Poor"`
	VeryPoor  Bucket `json:"Very Poor"`
}

// Hotel is the normalized per-request record surfaced to callers.
type Hotel struct {
	ID               int64        `json:"hotel_id"`
	Name             string       `json:"hotel_name"`
	Address          string       `json:"hotel_address"`
	ReviewScoreWord  string       `json:"review_score_word"`
	ReviewScore      float64      `json:"review_score"`
	BookingURL       string       `json:"hotel_booking_url"`
	PhotoURL         string       `json:"hotel_photo_url"`
	LocalPrice       *float64     `json:"local_price"`
	Currency         string       `json:"currency"`
	OriginalPrice    *float64     `json:"original_price"`
	OriginalCurrency string       `json:"original_currency"`
	CheckIn          WindowTimes  `json:"check_in"`
	CheckOut         WindowTimes  `json:"check_out"`
	Score            ScoreBuckets `json:"score"`
}

type WindowTimes struct {
	From  string `json:"from"`
	Until string `json:"until"`
}
