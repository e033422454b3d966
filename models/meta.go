// models/meta.go
package models

// SourceDescriptor identifies where a city's feed is published.
// DirectLink is a pointer so a descriptor that omits the key fails validation
// instead of silently meaning "scrape the page".
type SourceDescriptor struct {
	CityID     int64  `json:"city_id" validate:"required,gt=0"`
	CityName   string `json:"city_name" validate:"required,excludesall=/\\"`
	URL        string `json:"url" validate:"required,url"`
	DirectLink *bool  `json:"direct_link" validate:"required"`
}

// IsDirectLink reports whether URL points straight at the archive.
func (d SourceDescriptor) IsDirectLink() bool {
	return d.DirectLink != nil && *d.DirectLink
}

// City is the public view of a descriptor, as served by the cities table.
func (d SourceDescriptor) City() City {
	return City{CityID: d.CityID, CityName: d.CityName}
}

// City is a row of the cities table.
type City struct {
	CityID   int64  `json:"city_id"`
	CityName string `json:"city_name"`
}

// Bool returns a pointer to b, for building descriptors in code.
func Bool(b bool) *bool {
	return &b
}
