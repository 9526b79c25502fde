package enrichment

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/oschwald/maxminddb-golang"

	"github.com/harrierlabs/harrier/internal/models"
)

const unknownPlace = "Unknown"

// GeoLocator resolves public IP addresses to geolocation data.
type GeoLocator interface {
	Lookup(ctx context.Context, addr netip.Addr) (*models.GeoInfo, error)
}

// geoRecord mirrors the MaxMind city database layout. ASN fields appear only
// in combined city+ASN databases and stay zero otherwise.
type geoRecord struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Location struct {
		Latitude       float64 `maxminddb:"latitude"`
		Longitude      float64 `maxminddb:"longitude"`
		AccuracyRadius uint16  `maxminddb:"accuracy_radius"`
		TimeZone       string  `maxminddb:"time_zone"`
	} `maxminddb:"location"`
	Subdivisions []struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"subdivisions"`
	Postal struct {
		Code string `maxminddb:"code"`
	} `maxminddb:"postal"`
	ASN             uint   `maxminddb:"autonomous_system_number"`
	ASNOrganization string `maxminddb:"autonomous_system_organization"`
}

// MaxMindLocator reads geolocation data from a MaxMind mmdb file.
type MaxMindLocator struct {
	reader *maxminddb.Reader
}

// NewMaxMindLocator opens the database at path.
func NewMaxMindLocator(path string) (*MaxMindLocator, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMindLocator{reader: reader}, nil
}

// Lookup resolves addr against the database. Missing fields default to
// "Unknown" rather than failing; an address absent from the database returns
// (nil, nil).
func (l *MaxMindLocator) Lookup(ctx context.Context, addr netip.Addr) (*models.GeoInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record geoRecord
	ip := net.IP(addr.AsSlice())
	if err := l.reader.Lookup(ip, &record); err != nil {
		return nil, fmt.Errorf("geoip lookup for %s: %w", addr, err)
	}

	if len(record.Country.Names) == 0 && record.Country.ISOCode == "" {
		return nil, nil
	}

	lat, lon := record.Location.Latitude, record.Location.Longitude
	radius := record.Location.AccuracyRadius

	info := &models.GeoInfo{
		Country:         nameOrDefault(record.Country.Names, unknownPlace),
		CountryCode:     valueOrDefault(record.Country.ISOCode, "XX"),
		City:            nameOrDefault(record.City.Names, unknownPlace),
		Latitude:        &lat,
		Longitude:       &lon,
		AccuracyRadius:  &radius,
		Timezone:        record.Location.TimeZone,
		PostalCode:      record.Postal.Code,
		ASN:             record.ASN,
		ASNOrganization: record.ASNOrganization,
	}

	if len(record.Subdivisions) > 0 {
		info.Subdivision = nameOrDefault(record.Subdivisions[0].Names, unknownPlace)
		info.SubdivisionCode = record.Subdivisions[0].ISOCode
	}

	return info, nil
}

// Close releases the database reader.
func (l *MaxMindLocator) Close() error {
	return l.reader.Close()
}

// privateGeoInfo is the sentinel result for private, loopback and link-local
// addresses. These are classified without consulting the database.
func privateGeoInfo() *models.GeoInfo {
	return &models.GeoInfo{
		Country:     "Private/Local",
		CountryCode: "XX",
		City:        "Private/Local",
		IsPrivate:   true,
	}
}

// isPrivateAddr reports whether addr should get the private sentinel instead
// of a database lookup.
func isPrivateAddr(addr netip.Addr) bool {
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()
}

func nameOrDefault(names map[string]string, def string) string {
	if name, ok := names["en"]; ok && name != "" {
		return name
	}
	return def
}

func valueOrDefault(value, def string) string {
	if value != "" {
		return value
	}
	return def
}
