package domain

import "time"

// Route is an (origin, destination) airport pair under monitoring.
type Route struct {
	Origin      string
	Destination string
}

// Deal is one priced flight offer for a route and date(s).
// DepartureDate and ReturnDate are calendar dates in YYYY-MM-DD form;
// ReturnDate is empty for one-way offers. Price is in USD.
type Deal struct {
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureDate string    `json:"departure_date"`
	ReturnDate    string    `json:"return_date"`
	Price         float64   `json:"price"`
	Airline       string    `json:"airline"`
	Source        string    `json:"source"`
	URL           string    `json:"url"`
	FoundAt       time.Time `json:"found_at"`
}

// StoredDeal is a Deal that has been persisted. ID is the surrogate key
// assigned by the store; Notified flips to true exactly once when a
// notification has been dispatched for it.
type StoredDeal struct {
	Deal
	ID       int64 `json:"id"`
	Notified bool  `json:"notified"`
}

// PricePoint is one observed price for a route on a given travel date,
// recorded into the price history by the worker.
type PricePoint struct {
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Date        string    `json:"date"`
	Price       float64   `json:"price"`
	Source      string    `json:"source"`
	RecordedAt  time.Time `json:"recorded_at"`
}
