package domain

import (
	"encoding/json"
	"time"
)

// EntryType distinguishes people from organisations, vessels and the like.
type EntryType string

const (
	EntryIndividual EntryType = "Individual"
	EntryEntity     EntryType = "Entity"
)

type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

type Identification struct {
	Type    string `json:"type"`
	Number  string `json:"number"`
	Country string `json:"country,omitempty"`
}

// SanctionEntry is one listed person or entity. (SourceID, ExternalID) is
// its natural key; every other field is refreshed on each fetch.
type SanctionEntry struct {
	ID              int64                   `db:"id" json:"id,omitempty"`
	SourceID        string                  `db:"source_id" json:"source_id"`
	ExternalID      string                  `db:"external_id" json:"external_id"`
	Type            EntryType               `db:"entry_type" json:"type"`
	Names           StringList              `db:"names" json:"names"`
	Aliases         StringList              `db:"aliases" json:"aliases"`
	DateOfBirth     string                  `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Nationalities   StringList              `db:"nationalities" json:"nationalities"`
	Addresses       JSONB[[]Address]        `db:"addresses" json:"addresses"`
	Identifications JSONB[[]Identification] `db:"identifications" json:"identifications"`
	Programs        StringList              `db:"programs" json:"programs"`
	Remarks         string                  `db:"remarks" json:"remarks,omitempty"`
	RawData         json.RawMessage         `db:"raw_data" json:"raw_data,omitempty"`
	LastUpdated     time.Time               `db:"last_updated" json:"last_updated"`
}

// PrimaryName returns the first name or "".
func (e *SanctionEntry) PrimaryName() string {
	if len(e.Names) == 0 {
		return ""
	}
	return e.Names[0]
}
