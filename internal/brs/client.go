package brs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// The portal serves different markup to clients it does not recognize, so
// every request must carry a realistic mobile browser UA. Contract, not
// cosmetics.
const mobileUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) " +
	"AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 " +
	"Mobile/15E148 Safari/604.1"

const formContentType = "application/x-www-form-urlencoded"

// Client is an authenticated session against the booking portal for one
// club. It owns its cookie jar; a session is exclusively owned by the swap
// run that created it and is never shared.
type Client struct {
	hc   *http.Client
	base string
	club string
}

func NewClient(base, club string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		hc:   &http.Client{Timeout: 30 * time.Second, Jar: jar},
		base: strings.TrimRight(base, "/"),
		club: club,
	}
}

func (c *Client) Club() string { return c.club }

// Resolve absolutizes a portal path: absolute http URLs are used verbatim,
// rooted paths resolve against the portal base, anything else is rooted at
// the club.
func (c *Client) Resolve(path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return c.base + path
	}
	return fmt.Sprintf("%s/%s/%s", c.base, c.club, path)
}

// Login fetches the club's login page, fills the discovered form and
// submits it. A password input in the response means the portal re-rendered
// the login page: ErrLoginRejected.
func (c *Client) Login(ctx context.Context, username, password string) error {
	loginURL := fmt.Sprintf("%s/%s/login", c.base, c.club)
	status, body, err := c.do(ctx, http.MethodGet, loginURL, "", "", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("login page: status %d", status)
	}

	form, err := ExtractLoginForm(bytes.NewReader(body), username, password)
	if err != nil {
		return err
	}
	action := loginURL
	if form.Action != "" {
		action = c.Resolve(form.Action)
	}

	status, body, err = c.do(ctx, http.MethodPost, action, "", formContentType, []byte(form.Encode()))
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("login submit: status %d", status)
	}
	if HasPasswordInput(bytes.NewReader(body)) {
		return ErrLoginRejected
	}
	return nil
}

func (c *Client) sheetURL(courseID, date string) string {
	return fmt.Sprintf("%s/%s/tee-sheet/data/%s/%s", c.base, c.club, courseID, date)
}

// TeeSheet fetches and decodes the tee sheet for (course, date). date is
// the portal's YYYY/MM/DD path form.
func (c *Client) TeeSheet(ctx context.Context, courseID, date string) (*Sheet, error) {
	status, body, err := c.do(ctx, http.MethodGet, c.sheetURL(courseID, date), "", "", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("tee sheet: status %d", status)
	}
	var s Sheet
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("tee sheet: %w", err)
	}
	return &s, nil
}

// BookURL reads the slot's booking token from a fresh tee sheet and
// returns the decoded absolute URL, or "" when the slot carries none yet.
// Tokens go stale, so this never reads through the cache.
func (c *Client) BookURL(ctx context.Context, courseID, date, hhmm string) (string, error) {
	sheet, err := c.TeeSheet(ctx, courseID, date)
	if err != nil {
		return "", err
	}
	tee := sheet.Slot(hhmm)
	if tee == nil || tee.URL == "" {
		return "", nil
	}
	return c.Resolve(DecodeBookingURL(tee.URL)), nil
}

// BookingPage fetches the tokenized booking page whose form must be
// extracted before submitting.
func (c *Client) BookingPage(ctx context.Context, bookURL string) ([]byte, error) {
	status, body, err := c.do(ctx, http.MethodGet, bookURL, bookURL, "", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("booking page: status %d", status)
	}
	return body, nil
}

// SubmitForm posts a filled form. 200, 204 and redirects count as
// accepted; anything else is a refusal, not an error, and the caller owns
// retry policy. Acceptance alone does not prove the booking stuck; verify
// separately.
func (c *Client) SubmitForm(ctx context.Context, action string, form *Form, referer string) (bool, error) {
	status, _, err := c.do(ctx, http.MethodPost, action, referer, formContentType, []byte(form.Encode()))
	if err != nil {
		return false, err
	}
	return submitAccepted(status), nil
}

// Cancel releases the member's booking at hhmm. Same acceptance rule as
// SubmitForm.
func (c *Client) Cancel(ctx context.Context, courseID, date, hhmm string) (bool, error) {
	u := fmt.Sprintf("%s/%s/bookings/delete/%s/%s/%s",
		c.base, c.club, courseID,
		strings.ReplaceAll(date, "/", ""),
		strings.ReplaceAll(hhmm, ":", ""))
	status, _, err := c.do(ctx, http.MethodPost, u, "", "", nil)
	if err != nil {
		return false, err
	}
	return submitAccepted(status), nil
}

// Verify re-reads the tee sheet and reports whether the slot at hhmm is
// taken (no longer bookable) along with the participant names present.
func (c *Client) Verify(ctx context.Context, courseID, date, hhmm string) (bool, []string, error) {
	sheet, err := c.TeeSheet(ctx, courseID, date)
	if err != nil {
		return false, nil, err
	}
	tee := sheet.Slot(hhmm)
	if tee == nil {
		return true, nil, nil
	}
	return !tee.Bookable, tee.PlayerNames(), nil
}

// Fetch issues an authenticated GET for an arbitrary portal path. Used by
// collaborators (member autocomplete) that ride on the session.
func (c *Client) Fetch(ctx context.Context, pathOrURL, referer string) (int, []byte, error) {
	return c.do(ctx, http.MethodGet, c.Resolve(pathOrURL), referer, "", nil)
}

func submitAccepted(status int) bool {
	return status == http.StatusOK || status == http.StatusNoContent ||
		(status >= 300 && status < 400)
}

func (c *Client) do(ctx context.Context, method, rawURL, referer, contentType string, body []byte) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", mobileUA)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}
