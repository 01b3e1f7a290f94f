// Package players looks up member identifiers through the portal's
// autocomplete endpoint, which is not at a fixed path: it is advertised by
// a data attribute on the booking form, so a search first opens a booking
// page to discover it.
package players

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/example/teeswap/internal/brs"
)

const maxResults = 20

// Booking pages are probed at a few common tee times until one renders.
var probeTimes = []string{"0700", "0730", "0800", "0900", "0000"}

type Player struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Search queries the club's member autocomplete for q using an already
// authenticated session. date is YYYY/MM/DD (any bookable day works; it
// only selects which booking page to open).
func Search(ctx context.Context, client *brs.Client, date, q string) ([]Player, error) {
	autoURL, err := discoverAutocompleteURL(ctx, client, date)
	if err != nil {
		return nil, err
	}

	qs := url.Values{"q": {q}, "term": {q}}
	status, body, err := client.Fetch(ctx, autoURL+"?"+qs.Encode(), "")
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("autocomplete: status %d", status)
	}

	// The endpoint's item shape varies; accept the known key spellings.
	var raw []map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil
	}
	var out []Player
	for _, item := range raw {
		id := intField(item, "id", "value", "member_id")
		text := strField(item, "text", "label", "name")
		if id != 0 && text != "" {
			out = append(out, Player{ID: id, Text: text})
		}
		if len(out) == maxResults {
			break
		}
	}
	return out, nil
}

func discoverAutocompleteURL(ctx context.Context, client *brs.Client, date string) (string, error) {
	ymd := strings.ReplaceAll(date, "/", "")
	for _, hhmm := range probeTimes {
		path := fmt.Sprintf("/%s/bookings/store/1/%s/%s", client.Club(), ymd, hhmm)
		status, body, err := client.Fetch(ctx, path, path)
		if err != nil || status != 200 {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			continue
		}
		in := doc.Find(`input[name="member_booking_form[player_1_text]"]`).First()
		if in.Length() == 0 {
			in = doc.Find("input[data-autocomplete-url]").First()
		}
		if u := in.AttrOr("data-autocomplete-url", ""); u != "" {
			if !strings.HasPrefix(u, "/") {
				u = "/" + u
			}
			return u, nil
		}
	}
	return "", fmt.Errorf("autocomplete url not found")
}

func intField(m map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return int64(v)
		case string:
			var n int64
			if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
				return n
			}
		}
	}
	return 0
}

func strField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
