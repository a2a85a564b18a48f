package domain

// EntityType classifies an extracted identifier.
type EntityType string

const (
	EntityPerson       EntityType = "PERSON"
	EntityOrg          EntityType = "ORG"
	EntityLocation     EntityType = "LOCATION"
	EntityPhone        EntityType = "PHONE"
	EntityEmail        EntityType = "EMAIL"
	EntityIBAN         EntityType = "IBAN"
	EntityCrypto       EntityType = "CRYPTO"
	EntityLicensePlate EntityType = "LICENSE_PLATE"
	EntityVIN          EntityType = "VIN"
)

// Enrichable reports whether entities of this type are sent for matching.
func (t EntityType) Enrichable() bool {
	switch t {
	case EntityPhone, EntityEmail, EntityIBAN, EntityCrypto:
		return true
	default:
		return false
	}
}

// Span is a half-open [Start, End) byte range into the scanned text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ExtractedEntity is an identifier found in harvested text. It is only ever
// stored embedded in its CrawlResult.
type ExtractedEntity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	Normalized string     `json:"normalized"`
	Confidence float64    `json:"confidence"`
	Span       Span       `json:"span"`
}
