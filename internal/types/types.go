package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Status values reported by the geolocation service
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// GeoLocation represents the geolocation record returned by ip-api.com
type GeoLocation struct {
	Status      string  `json:"status" xml:"status" csv:"status"`
	Message     string  `json:"message,omitempty" xml:"message,omitempty" csv:"message"`
	Country     string  `json:"country" xml:"country" csv:"country"`
	CountryCode string  `json:"countryCode" xml:"country_code" csv:"country_code"`
	Region      string  `json:"region" xml:"region" csv:"region"`
	RegionName  string  `json:"regionName" xml:"region_name" csv:"region_name"`
	City        string  `json:"city" xml:"city" csv:"city"`
	Zip         string  `json:"zip" xml:"zip" csv:"zip"`
	Latitude    float64 `json:"lat" xml:"latitude" csv:"latitude"`
	Longitude   float64 `json:"lon" xml:"longitude" csv:"longitude"`
	Timezone    string  `json:"timezone" xml:"timezone" csv:"timezone"`
	ISP         string  `json:"isp" xml:"isp" csv:"isp"`
	Org         string  `json:"org" xml:"org" csv:"org"`
	AS          string  `json:"as" xml:"as" csv:"as"`
	Query       string  `json:"query" xml:"query" csv:"query"`
}

// Succeeded reports whether the service resolved the query
func (g GeoLocation) Succeeded() bool {
	return g.Status == StatusSuccess
}

// String renders the record as space separated key=value pairs
func (g GeoLocation) String() string {
	var b strings.Builder
	b.WriteString("GeoLocation{")
	b.WriteString("status=" + strconv.Quote(g.Status))
	if g.Message != "" {
		b.WriteString(" message=" + strconv.Quote(g.Message))
	}
	fmt.Fprintf(&b, " query=%q country=%q countryCode=%q region=%q regionName=%q city=%q zip=%q",
		g.Query, g.Country, g.CountryCode, g.Region, g.RegionName, g.City, g.Zip)
	fmt.Fprintf(&b, " lat=%s lon=%s timezone=%q isp=%q org=%q as=%q}",
		formatCoordinate(g.Latitude), formatCoordinate(g.Longitude), g.Timezone, g.ISP, g.Org, g.AS)
	return b.String()
}

// CSVHeader returns the column names matching CSVRecord
func CSVHeader() []string {
	return []string{
		"status", "message", "query", "country", "country_code", "region",
		"region_name", "city", "zip", "latitude", "longitude", "timezone",
		"isp", "org", "as",
	}
}

// CSVRecord returns the record fields in CSVHeader order
func (g GeoLocation) CSVRecord() []string {
	return []string{
		g.Status,
		g.Message,
		g.Query,
		g.Country,
		g.CountryCode,
		g.Region,
		g.RegionName,
		g.City,
		g.Zip,
		formatCoordinate(g.Latitude),
		formatCoordinate(g.Longitude),
		g.Timezone,
		g.ISP,
		g.Org,
		g.AS,
	}
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
