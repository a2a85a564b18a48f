package sanctions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
)

const euEntityPath = "/export/sanctionEntity"

// EU reads the consolidated EU Financial Sanctions file.
type EU struct {
	base
}

var _ connector.SanctionsConnector = (*EU)(nil)

// NewEU creates the EU FSD connector.
func NewEU(cfg domain.ConnectorConfig, client *connector.SourceClient, log logger.Logger, opts ...Option) *EU {
	return &EU{base: newBase(cfg, client, log, opts)}
}

// Fetch downloads and parses the full list.
func (c *EU) Fetch(ctx context.Context) ([]domain.SanctionEntry, error) {
	resp, err := c.client.Get(ctx, c.cfg, c.cfg.URL, connector.AcceptXML)
	if err != nil {
		return nil, err
	}
	return c.parse(bytes.NewReader(resp.Body))
}

func (c *EU) parse(r io.Reader) ([]domain.SanctionEntry, error) {
	parser, err := xmlquery.CreateStreamParser(r, euEntityPath)
	if err != nil {
		return nil, fmt.Errorf("%s: create stream parser: %w", c.cfg.ID, err)
	}

	var (
		entries []domain.SanctionEntry
		seen    int
	)
	for {
		node, readErr := parser.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("%s: read xml: %w", c.cfg.ID, readErr)
		}
		seen++

		entry, convErr := c.convert(node)
		if convErr != nil {
			c.skip(node.SelectAttr("logicalId"), convErr)
			continue
		}
		entries = append(entries, entry)
	}

	if seen == 0 {
		return nil, fmt.Errorf("%s: no sanctionEntity elements found", c.cfg.ID)
	}

	return entries, nil
}

func (c *EU) convert(n *xmlquery.Node) (domain.SanctionEntry, error) {
	id := strings.TrimSpace(n.SelectAttr("logicalId"))
	if id == "" {
		return domain.SanctionEntry{}, errors.New("missing logicalId")
	}

	entry := domain.SanctionEntry{
		SourceID:    c.cfg.ID,
		ExternalID:  id,
		Type:        domain.EntryEntity,
		LastUpdated: c.now().UTC(),
	}

	if subject := xmlquery.FindOne(n, "subjectType"); subject != nil && subject.SelectAttr("code") == "person" {
		entry.Type = domain.EntryIndividual
	}

	for _, alias := range xmlquery.Find(n, "nameAlias") {
		name := strings.TrimSpace(alias.SelectAttr("wholeName"))
		if name == "" {
			name = joinName(alias.SelectAttr("firstName"), alias.SelectAttr("middleName"), alias.SelectAttr("lastName"))
		}
		if strings.EqualFold(alias.SelectAttr("strong"), "true") {
			entry.Names = appendUnique(entry.Names, name)
		} else {
			entry.Aliases = appendUnique(entry.Aliases, name)
		}
	}
	// Entries listing only weak aliases still need a primary name.
	if len(entry.Names) == 0 && len(entry.Aliases) > 0 {
		entry.Names = domain.StringList{entry.Aliases[0]}
		entry.Aliases = entry.Aliases[1:]
	}
	if len(entry.Names) == 0 {
		return domain.SanctionEntry{}, errors.New("no nameAlias")
	}

	for _, reg := range xmlquery.Find(n, "regulation") {
		entry.Programs = appendUnique(entry.Programs, reg.SelectAttr("programme"))
	}

	for _, cz := range xmlquery.Find(n, "citizenship") {
		entry.Nationalities = appendUnique(entry.Nationalities, countryOf(cz))
	}

	if birth := xmlquery.FindOne(n, "birthdate"); birth != nil {
		entry.DateOfBirth = euBirthdate(birth)
	}

	var addresses []domain.Address
	for _, a := range xmlquery.Find(n, "address") {
		addresses = append(addresses, domain.Address{
			Street:     joinStreet(a.SelectAttr("street"), a.SelectAttr("poBox")),
			City:       joinStreet(a.SelectAttr("city"), a.SelectAttr("region")),
			Country:    countryOf(a),
			PostalCode: strings.TrimSpace(a.SelectAttr("zipCode")),
		})
	}
	entry.Addresses = domain.NewJSONB(addresses)

	var ids []domain.Identification
	for _, doc := range xmlquery.Find(n, "identification") {
		kind := doc.SelectAttr("identificationTypeDescription")
		if kind == "" {
			kind = doc.SelectAttr("identificationTypeCode")
		}
		ids = append(ids, domain.Identification{
			Type:    strings.TrimSpace(kind),
			Number:  strings.TrimSpace(doc.SelectAttr("number")),
			Country: strings.TrimSpace(doc.SelectAttr("countryIso2Code")),
		})
	}
	entry.Identifications = domain.NewJSONB(ids)

	var remarks []string
	for _, r := range xmlquery.Find(n, "remark") {
		if text := strings.TrimSpace(r.InnerText()); text != "" {
			remarks = append(remarks, text)
		}
	}
	entry.Remarks = strings.Join(remarks, "\n")

	payload, err := json.Marshal(map[string]string{
		"euReferenceNumber": n.SelectAttr("euReferenceNumber"),
		"xml":               n.OutputXML(true),
	})
	if err != nil {
		return domain.SanctionEntry{}, fmt.Errorf("marshal raw entry: %w", err)
	}
	entry.RawData = payload

	return entry, nil
}

// euBirthdate prefers the full birthdate attribute and otherwise rebuilds
// the date from whichever of year, month and day are present.
func euBirthdate(n *xmlquery.Node) string {
	if full := strings.TrimSpace(n.SelectAttr("birthdate")); full != "" {
		return full
	}

	year, err := strconv.Atoi(n.SelectAttr("year"))
	if err != nil || year <= 0 {
		return ""
	}
	month, _ := strconv.Atoi(n.SelectAttr("monthOfYear"))
	day, _ := strconv.Atoi(n.SelectAttr("dayOfMonth"))

	switch {
	case month <= 0:
		return fmt.Sprintf("%04d", year)
	case day <= 0:
		return fmt.Sprintf("%04d-%02d", year, month)
	default:
		return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	}
}

func countryOf(n *xmlquery.Node) string {
	if desc := strings.TrimSpace(n.SelectAttr("countryDescription")); desc != "" && desc != "UNKNOWN" {
		return desc
	}
	return strings.TrimSpace(n.SelectAttr("countryIso2Code"))
}
