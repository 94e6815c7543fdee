package mfapi

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"mf-portfolio-go/internal/date"
	"mf-portfolio-go/internal/fund"

	"github.com/shopspring/decimal"
)

const statusSuccess = "SUCCESS"

// Meta describes where a result came from.
type Meta struct {
	// Stale is set when the source could not be reached and the value was
	// served from an expired cache entry.
	Stale     bool      `json:"stale"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Scheme is a scheme's metadata together with its full NAV history in
// ascending date order.
type Scheme struct {
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	FundHouse string          `json:"fund_house"`
	Type      string          `json:"type"`
	Category  string          `json:"category"`
	History   []fund.NAVPoint `json:"history"`
	Meta
}

// Latest returns the newest NAV point. ok is false when the history is empty.
func (s Scheme) Latest() (fund.NAVPoint, bool) {
	if len(s.History) == 0 {
		return fund.NAVPoint{}, false
	}
	return s.History[len(s.History)-1], true
}

// Ref returns the scheme's code and name.
func (s Scheme) Ref() fund.SchemeRef { return fund.SchemeRef{Code: s.Code, Name: s.Name} }

// Quote is a single NAV of a scheme.
type Quote struct {
	Code string          `json:"code"`
	Name string          `json:"name"`
	Date date.Date       `json:"date"`
	NAV  decimal.Decimal `json:"nav"`
	Meta
}

// schemeCode accepts both the numeric and the quoted form the API uses.
type schemeCode string

func (c *schemeCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = schemeCode(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = schemeCode(n.String())
	return nil
}

// schemeListItem is one element of the GET /mf response.
type schemeListItem struct {
	SchemeCode schemeCode `json:"schemeCode"`
	SchemeName string     `json:"schemeName"`
}

// schemeResponse is the GET /mf/{code} response.
type schemeResponse struct {
	Meta struct {
		FundHouse      string     `json:"fund_house"`
		SchemeType     string     `json:"scheme_type"`
		SchemeCategory string     `json:"scheme_category"`
		SchemeCode     schemeCode `json:"scheme_code"`
		SchemeName     string     `json:"scheme_name"`
	} `json:"meta"`
	Data []struct {
		Date string `json:"date"`
		NAV  string `json:"nav"`
	} `json:"data"`
	Status string `json:"status"`
}
