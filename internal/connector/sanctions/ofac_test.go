package sanctions_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector/sanctions"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/fetcher"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sdnXML = `<?xml version="1.0" standalone="yes"?>
<sdnList xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns="http://tempuri.org/sdnList.xsd">
  <publshInformation>
    <Publish_Date>03/01/2026</Publish_Date>
    <Record_Count>3</Record_Count>
  </publshInformation>
  <sdnEntry>
    <uid>1001</uid>
    <firstName>John</firstName>
    <lastName>Doe</lastName>
    <sdnType>Individual</sdnType>
    <programList>
      <program>SDGT</program>
      <program>CUBA</program>
    </programList>
    <akaList>
      <aka>
        <uid>5001</uid>
        <type>a.k.a.</type>
        <category>weak</category>
        <firstName>Johnny</firstName>
      </aka>
    </akaList>
    <nationalityList>
      <nationality>
        <uid>7001</uid>
        <country>Cuba</country>
        <mainEntry>true</mainEntry>
      </nationality>
    </nationalityList>
    <dateOfBirthList>
      <dateOfBirthItem>
        <uid>8001</uid>
        <dateOfBirth>1961</dateOfBirth>
        <mainEntry>false</mainEntry>
      </dateOfBirthItem>
      <dateOfBirthItem>
        <uid>8002</uid>
        <dateOfBirth>12 Mar 1960</dateOfBirth>
        <mainEntry>true</mainEntry>
      </dateOfBirthItem>
    </dateOfBirthList>
    <idList>
      <id>
        <uid>9001</uid>
        <idType>Passport</idType>
        <idNumber>A1234567</idNumber>
        <idCountry>Cuba</idCountry>
      </id>
    </idList>
  </sdnEntry>
  <sdnEntry>
    <uid>1002</uid>
    <lastName>ACME TRADING LTD</lastName>
    <sdnType>Entity</sdnType>
    <programList>
      <program>IRAN</program>
    </programList>
    <addressList>
      <address>
        <uid>6001</uid>
        <address1>12 Harbour Road</address1>
        <city>Dubai</city>
        <country>United Arab Emirates</country>
      </address>
    </addressList>
    <remarks>Linked To: EXAMPLE HOLDING.</remarks>
  </sdnEntry>
  <sdnEntry>
    <sdnType>Entity</sdnType>
    <lastName>NO UID</lastName>
  </sdnEntry>
</sdnList>`

func fetchOFAC(t *testing.T, body string) []domain.SanctionEntry {
	t.Helper()

	srv := serveBody(t, "application/xml", body)
	c := sanctions.NewOFAC(sourceConfig("ofac-sdn", domain.ConnectorTypeXML, srv.URL), newClient(), logger.NewNop(),
		sanctions.WithClock(clock))

	entries, err := c.Fetch(context.Background())
	require.NoError(t, err)
	return entries
}

func TestOFAC_JohnDoe(t *testing.T) {
	t.Parallel()

	entries := fetchOFAC(t, sdnXML)
	require.Len(t, entries, 2, "entry without uid is skipped")

	john := entries[0]
	assert.Equal(t, "ofac-sdn", john.SourceID)
	assert.Equal(t, "1001", john.ExternalID)
	assert.Equal(t, domain.EntryIndividual, john.Type)
	assert.Equal(t, domain.StringList{"John Doe"}, john.Names)
	assert.Equal(t, domain.StringList{"Johnny"}, john.Aliases)
	assert.Equal(t, domain.StringList{"SDGT", "CUBA"}, john.Programs)
	assert.Equal(t, domain.StringList{"Cuba"}, john.Nationalities)
	assert.Equal(t, "12 Mar 1960", john.DateOfBirth)
	require.Len(t, john.Identifications.Data, 1)
	assert.Equal(t, domain.Identification{Type: "Passport", Number: "A1234567", Country: "Cuba"}, john.Identifications.Data[0])
	assert.Equal(t, fixedNow, john.LastUpdated)
	assert.Contains(t, string(john.RawData), `"uid":"1001"`)
}

func TestOFAC_SingleChildrenAreLists(t *testing.T) {
	t.Parallel()

	entries := fetchOFAC(t, sdnXML)
	require.Len(t, entries, 2)

	acme := entries[1]
	assert.Equal(t, domain.EntryEntity, acme.Type)
	assert.Equal(t, domain.StringList{"ACME TRADING LTD"}, acme.Names)
	assert.Empty(t, acme.Aliases)
	assert.Equal(t, domain.StringList{"IRAN"}, acme.Programs)
	require.Len(t, acme.Addresses.Data, 1)
	assert.Equal(t, "12 Harbour Road", acme.Addresses.Data[0].Street)
	assert.Equal(t, "Dubai", acme.Addresses.Data[0].City)
	assert.Equal(t, "Linked To: EXAMPLE HOLDING.", acme.Remarks)
}

func TestOFAC_NoEntries(t *testing.T) {
	t.Parallel()

	srv := serveBody(t, "application/xml", `<sdnList></sdnList>`)
	c := sanctions.NewOFAC(sourceConfig("ofac-sdn", domain.ConnectorTypeXML, srv.URL), newClient(), nil)

	_, err := c.Fetch(context.Background())
	require.Error(t, err)
}

func TestOFAC_ClientErrorSurfaces(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	c := sanctions.NewOFAC(sourceConfig("ofac-sdn", domain.ConnectorTypeXML, srv.URL), newClient(), nil)
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, fetcher.IsClientError(err))
}

func TestOFAC_MalformedEntryIsSkipped(t *testing.T) {
	t.Parallel()

	body := `<sdnList>
  <sdnEntry>
    <uid>2001</uid>
    <lastName>BROKEN FLAG</lastName>
    <sdnType>Entity</sdnType>
    <nationalityList>
      <nationality>
        <uid>7101</uid>
        <country>Iran</country>
        <mainEntry>yes</mainEntry>
      </nationality>
    </nationalityList>
  </sdnEntry>
  <sdnEntry>
    <uid>2002</uid>
    <firstName>Jane</firstName>
    <lastName>Roe</lastName>
    <sdnType>Individual</sdnType>
  </sdnEntry>
</sdnList>`

	entries := fetchOFAC(t, body)
	require.Len(t, entries, 1)
	assert.Equal(t, "2002", entries[0].ExternalID)
	assert.Equal(t, domain.StringList{"Jane Roe"}, entries[0].Names)
}

func TestOFAC_BrokenDocumentFails(t *testing.T) {
	t.Parallel()

	srv := serveBody(t, "application/xml", `<sdnList><sdnEntry><uid>1</uid><lastName>X</sdnEntry></sdnList>`)
	c := sanctions.NewOFAC(sourceConfig("ofac-sdn", domain.ConnectorTypeXML, srv.URL), newClient(), nil)

	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ofac-sdn")
}
