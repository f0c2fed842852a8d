package flights

import "encoding/json"

// AirportInfo describes one airport matched during city resolution.
type AirportInfo struct {
	Name           string   `json:"airport_name"`
	Code           string   `json:"airport_code"`
	CityName       string   `json:"city_name"`
	CountryName    string   `json:"country_name"`
	DistanceToCity *float64 `json:"distance_to_city"`
}

// Leg is one hop of a flight segment.
type Leg struct {
	DepartureTime    string  `json:"departure_time"`
	ArrivalTime      string  `json:"arrival_time"`
	DepartureAirport string  `json:"departure_airport"`
	ArrivalAirport   string  `json:"arrival_airport"`
	DepartureCity    string  `json:"departure_city"`
	ArrivalCity      string  `json:"arrival_city"`
	DepartureCountry string  `json:"departure_country"`
	ArrivalCountry   string  `json:"arrival_country"`
	CabinClass       string  `json:"cabin_class"`
	FlightNumber     string  `json:"flight_number"`
	ArrivalTerminal  string  `json:"arrival_terminal"`
	Carrier          *string `json:"carrier"`
	CarrierLogo      *string `json:"carrier_logo"`
}

// Segment is one normalized direction of an offer, classified as outbound
// or return by its departure airport code.
type Segment struct {
	Token            string   `json:"token"`
	TravellersCount  int      `json:"travellers_count"`
	Price            *float64 `json:"price"`
	Currency         string   `json:"currency"`
	BaseCurrencyCode string   `json:"base_currency"`
	BaseCurrencyDate string   `json:"base_currency_date"`
	DepartureTime    string   `json:"departure_time"`
	ArrivalTime      string   `json:"arrival_time"`
	DepartureCity    string   `json:"departure_city"`
	DepartureCountry string   `json:"departure_country"`
	DepartureAirport string   `json:"departure_airport"`
	ArrivalCity      string   `json:"arrival_city"`
	ArrivalCountry   string   `json:"arrival_country"`
	ArrivalAirport   string   `json:"arrival_airport"`
	DurationSeconds  int      `json:"duration_seconds"`
	DurationHours    float64  `json:"duration_hours"`
	Legs             []Leg    `json:"legs"`
}

// RoundTrip is the normalized response for one flight search.
type RoundTrip struct {
	DepartureAirports []AirportInfo `json:"departure_airport_info"`
	ArrivalAirports   []AirportInfo `json:"arrival_airport_info"`
	Outbound          []Segment     `json:"outbound"`
	Return            []Segment     `json:"return"`
}

// PriceDetail is the per-offer price lookup result. Both fields are nil
// when the provider declined the lookup; partial price data is acceptable.
type PriceDetail struct {
	Price    *float64 `json:"price"`
	Currency *string  `json:"currency"`
}

// ---- provider payload shapes ----

type rawAirportEntry struct {
	Type           string `json:"type"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	CityName       string `json:"cityName"`
	CountryName    string `json:"countryName"`
	DistanceToCity *struct {
		Value *float64 `json:"value"`
	} `json:"distanceToCity"`
}

type rawOffer struct {
	Token      string       `json:"token"`
	Travellers []struct{}   `json:"travellers"`
	Segments   []rawSegment `json:"segments"`
}

type rawSegment struct {
	DepartureTime    string      `json:"departureTime"`
	ArrivalTime      string      `json:"arrivalTime"`
	DepartureAirport *rawAirport `json:"departureAirport"`
	ArrivalAirport   *rawAirport `json:"arrivalAirport"`
	TotalTime        int         `json:"totalTime"`
	Legs             []rawLeg    `json:"legs"`
}

type rawAirport struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	CityName    string `json:"cityName"`
	CountryName string `json:"countryName"`
}

type rawLeg struct {
	DepartureTime    string      `json:"departureTime"`
	ArrivalTime      string      `json:"arrivalTime"`
	DepartureAirport *rawAirport `json:"departureAirport"`
	ArrivalAirport   *rawAirport `json:"arrivalAirport"`
	CabinClass       string      `json:"cabinClass"`
	ArrivalTerminal  string      `json:"arrivalTerminal"`
	FlightInfo       *struct {
		FlightNumber json.Number `json:"flightNumber"`
		CarrierInfo  *struct {
			OperatingCarrier string `json:"operatingCarrier"`
		} `json:"carrierInfo"`
	} `json:"flightInfo"`
	CarriersData []struct {
		Name string `json:"name"`
		Logo string `json:"logo"`
	} `json:"carriersData"`
}
