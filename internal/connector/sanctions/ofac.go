package sanctions

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
)

// The sdn.xml schema. Every repeatable child is a slice so a single
// occurrence still decodes into a one-element list.
type sdnEntry struct {
	UID         string           `xml:"uid" json:"uid"`
	FirstName   string           `xml:"firstName" json:"firstName,omitempty"`
	LastName    string           `xml:"lastName" json:"lastName,omitempty"`
	Title       string           `xml:"title" json:"title,omitempty"`
	SDNType     string           `xml:"sdnType" json:"sdnType"`
	Remarks     string           `xml:"remarks" json:"remarks,omitempty"`
	Programs    []string         `xml:"programList>program" json:"programList"`
	IDs         []sdnID          `xml:"idList>id" json:"idList"`
	AKAs        []sdnAKA         `xml:"akaList>aka" json:"akaList"`
	Addresses   []sdnAddress     `xml:"addressList>address" json:"addressList"`
	Nationality []sdnCountry     `xml:"nationalityList>nationality" json:"nationalityList"`
	Citizenship []sdnCountry     `xml:"citizenshipList>citizenship" json:"citizenshipList"`
	DOBs        []sdnDateOfBirth `xml:"dateOfBirthList>dateOfBirthItem" json:"dateOfBirthList"`
}

type sdnID struct {
	UID       string `xml:"uid" json:"uid"`
	IDType    string `xml:"idType" json:"idType"`
	IDNumber  string `xml:"idNumber" json:"idNumber"`
	IDCountry string `xml:"idCountry" json:"idCountry,omitempty"`
}

type sdnAKA struct {
	UID       string `xml:"uid" json:"uid"`
	Type      string `xml:"type" json:"type"`
	Category  string `xml:"category" json:"category"`
	FirstName string `xml:"firstName" json:"firstName,omitempty"`
	LastName  string `xml:"lastName" json:"lastName,omitempty"`
}

type sdnAddress struct {
	UID             string `xml:"uid" json:"uid"`
	Address1        string `xml:"address1" json:"address1,omitempty"`
	Address2        string `xml:"address2" json:"address2,omitempty"`
	Address3        string `xml:"address3" json:"address3,omitempty"`
	City            string `xml:"city" json:"city,omitempty"`
	StateOrProvince string `xml:"stateOrProvince" json:"stateOrProvince,omitempty"`
	PostalCode      string `xml:"postalCode" json:"postalCode,omitempty"`
	Country         string `xml:"country" json:"country,omitempty"`
}

type sdnCountry struct {
	UID       string `xml:"uid" json:"uid"`
	Country   string `xml:"country" json:"country"`
	MainEntry bool   `xml:"mainEntry" json:"mainEntry"`
}

type sdnDateOfBirth struct {
	UID         string `xml:"uid" json:"uid"`
	DateOfBirth string `xml:"dateOfBirth" json:"dateOfBirth"`
	MainEntry   bool   `xml:"mainEntry" json:"mainEntry"`
}

// OFAC downloads the SDN list.
type OFAC struct {
	base
}

var _ connector.SanctionsConnector = (*OFAC)(nil)

// NewOFAC creates the OFAC SDN connector.
func NewOFAC(cfg domain.ConnectorConfig, client *connector.SourceClient, log logger.Logger, opts ...Option) *OFAC {
	return &OFAC{base: newBase(cfg, client, log, opts)}
}

// Fetch downloads and parses the full list.
func (c *OFAC) Fetch(ctx context.Context) ([]domain.SanctionEntry, error) {
	resp, err := c.client.Get(ctx, c.cfg, c.cfg.URL, connector.AcceptXML)
	if err != nil {
		return nil, err
	}
	return c.parse(bytes.NewReader(resp.Body))
}

// parse streams sdnEntry elements so the multi-megabyte list is never held
// as one tree.
func (c *OFAC) parse(r io.Reader) ([]domain.SanctionEntry, error) {
	dec := xml.NewDecoder(r)
	var (
		entries []domain.SanctionEntry
		seen    int
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: decode xml: %w", c.cfg.ID, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "sdnEntry" {
			continue
		}

		seen++
		var raw sdnEntry
		if decodeErr := dec.DecodeElement(&raw, &start); decodeErr != nil {
			var syntaxErr *xml.SyntaxError
			if errors.As(decodeErr, &syntaxErr) {
				return nil, fmt.Errorf("%s: decode sdnEntry: %w", c.cfg.ID, decodeErr)
			}
			// A bad field value leaves the document readable; the token loop
			// resumes at the next sdnEntry.
			c.skip(raw.UID, decodeErr)
			continue
		}

		entry, convErr := c.convert(raw)
		if convErr != nil {
			c.skip(raw.UID, convErr)
			continue
		}
		entries = append(entries, entry)
	}

	if seen == 0 {
		return nil, fmt.Errorf("%s: no sdnEntry elements found", c.cfg.ID)
	}

	return entries, nil
}

func (c *OFAC) convert(raw sdnEntry) (domain.SanctionEntry, error) {
	uid := strings.TrimSpace(raw.UID)
	if uid == "" {
		return domain.SanctionEntry{}, errors.New("missing uid")
	}

	primary := joinName(raw.FirstName, raw.LastName)
	if primary == "" {
		return domain.SanctionEntry{}, errors.New("missing name")
	}

	entry := domain.SanctionEntry{
		SourceID:    c.cfg.ID,
		ExternalID:  uid,
		Type:        domain.EntryEntity,
		Names:       domain.StringList{primary},
		Remarks:     strings.TrimSpace(raw.Remarks),
		LastUpdated: c.now().UTC(),
	}
	if strings.EqualFold(raw.SDNType, "Individual") {
		entry.Type = domain.EntryIndividual
	}

	for _, aka := range raw.AKAs {
		entry.Aliases = appendUnique(entry.Aliases, joinName(aka.FirstName, aka.LastName))
	}
	entry.Programs = appendUnique(entry.Programs, raw.Programs...)

	for _, n := range raw.Nationality {
		entry.Nationalities = appendUnique(entry.Nationalities, n.Country)
	}
	for _, n := range raw.Citizenship {
		entry.Nationalities = appendUnique(entry.Nationalities, n.Country)
	}

	entry.DateOfBirth = mainDateOfBirth(raw.DOBs)

	addresses := make([]domain.Address, 0, len(raw.Addresses))
	for _, a := range raw.Addresses {
		addresses = append(addresses, domain.Address{
			Street:     joinStreet(a.Address1, a.Address2, a.Address3),
			City:       joinStreet(a.City, a.StateOrProvince),
			Country:    strings.TrimSpace(a.Country),
			PostalCode: strings.TrimSpace(a.PostalCode),
		})
	}
	entry.Addresses = domain.NewJSONB(addresses)

	ids := make([]domain.Identification, 0, len(raw.IDs))
	for _, id := range raw.IDs {
		ids = append(ids, domain.Identification{
			Type:    strings.TrimSpace(id.IDType),
			Number:  strings.TrimSpace(id.IDNumber),
			Country: strings.TrimSpace(id.IDCountry),
		})
	}
	entry.Identifications = domain.NewJSONB(ids)

	payload, err := json.Marshal(raw)
	if err != nil {
		return domain.SanctionEntry{}, fmt.Errorf("marshal raw entry: %w", err)
	}
	entry.RawData = payload

	return entry, nil
}

func mainDateOfBirth(dobs []sdnDateOfBirth) string {
	for _, d := range dobs {
		if d.MainEntry {
			return strings.TrimSpace(d.DateOfBirth)
		}
	}
	if len(dobs) > 0 {
		return strings.TrimSpace(dobs[0].DateOfBirth)
	}
	return ""
}

func joinStreet(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
