package enricher

import (
	"net"

	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"

	"github.com/gosight/gosight/engagement/internal/beacon"
)

type Enricher struct {
	geoIP *geoip2.Reader
}

func NewEnricher(geoIPPath string) *Enricher {
	// Try to load GeoIP database
	var geoIP *geoip2.Reader
	if geoIPPath != "" {
		geoIP, _ = geoip2.Open(geoIPPath)
	}

	return &Enricher{
		geoIP: geoIP,
	}
}

// Enrich describes the visitor of a page view. It runs once when the page view
// starts; every heartbeat of the page view carries the result.
func (e *Enricher) Enrich(userAgentString, clientIP string) beacon.Client {
	var client beacon.Client

	// Parse user agent
	if userAgentString != "" {
		ua := useragent.New(userAgentString)
		client.Browser, client.BrowserVersion = ua.Browser()
		client.OS = ua.OS()
		client.DeviceType = getDeviceType(ua)
	}

	// GeoIP lookup
	if e.geoIP != nil && clientIP != "" {
		if host, _, err := net.SplitHostPort(clientIP); err == nil {
			clientIP = host
		}
		ip := net.ParseIP(clientIP)
		if ip != nil {
			record, err := e.geoIP.City(ip)
			if err == nil {
				client.Country = record.Country.IsoCode
				if name, ok := record.City.Names["en"]; ok {
					client.City = name
				}
			}
		}
	}

	return client
}

func getDeviceType(ua *useragent.UserAgent) string {
	if ua.Bot() {
		return "bot"
	}
	if ua.Mobile() {
		return "mobile"
	}
	return "desktop"
}

func (e *Enricher) Close() {
	if e.geoIP != nil {
		e.geoIP.Close()
	}
}
