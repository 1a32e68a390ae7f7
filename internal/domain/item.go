package domain

// UnitID names one selectable work unit (a region).
type UnitID string

// Item is one collected record.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AddressLine string `json:"street_address"`
	PostalCode  string `json:"postal_code"`
	City        string `json:"city"`
	RegionID    UnitID `json:"state"`

	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	Website     string `json:"website,omitempty"`
	SourceURL   string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	Capacity    int    `json:"capacity,omitempty"`
	AgeRange    string `json:"ageRange,omitempty"`
}

// CloneItems returns a copy of items that shares no backing array with the input.
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
