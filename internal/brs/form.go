package brs

import (
	"fmt"
	"html"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

// The portal's booking form is identified by its first player input, and
// player assignments and the transaction token follow its field naming.
const (
	BookingFormMarker = "player_1"
	playerFieldFmt    = "member_booking_form[player_%d]"
	txTokenField      = "member_booking_form[vendor-tx-code]"
)

// Form is a parsed HTML form: its action plus fields in document order.
// Field names are not known in advance, so the form is a schemaless
// ordered key/value bag built by pure parsing; nothing here touches the
// network.
type Form struct {
	Action string

	names  []string
	values map[string]string
}

func newForm(action string) *Form {
	return &Form{Action: action, values: map[string]string{}}
}

func (f *Form) Set(name, value string) {
	if _, ok := f.values[name]; !ok {
		f.names = append(f.names, name)
	}
	f.values[name] = value
}

func (f *Form) Get(name string) string { return f.values[name] }

func (f *Form) Has(name string) bool {
	_, ok := f.values[name]
	return ok
}

func (f *Form) Names() []string { return f.names }

// Encode renders the fields form-urlencoded in insertion order.
func (f *Form) Encode() string {
	var b strings.Builder
	for i, name := range f.names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.values[name]))
	}
	return b.String()
}

var (
	usernameFieldVariants = []string{
		"login_form[username]",
		"login_form_membership_number",
		"login_form_membership",
		"username",
		"membership_number",
		"login[username]",
		"login[membership_number]",
	}
	passwordFieldVariants = []string{
		"login_form[password]",
		"login_form_password",
		"password",
		"login[password]",
	}
)

// ExtractLoginForm locates the login form (first form carrying a name
// attribute, else the first form), captures every input's default value,
// then overrides the username and password fields. Detection is name-based
// against known variants, falling back to the first text-like input and
// the first password input.
func ExtractLoginForm(r io.Reader, username, password string) (*Form, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	sel := doc.Find("form[name]").First()
	if sel.Length() == 0 {
		sel = doc.Find("form").First()
	}
	if sel.Length() == 0 {
		return nil, ErrLoginFormNotFound
	}

	form := newForm(strings.TrimSpace(sel.AttrOr("action", "")))
	sel.Find("input").Each(func(_ int, in *goquery.Selection) {
		name := in.AttrOr("name", "")
		if name == "" {
			return
		}
		switch strings.ToLower(in.AttrOr("type", "")) {
		case "checkbox", "radio":
			if _, checked := in.Attr("checked"); checked {
				form.Set(name, in.AttrOr("value", "on"))
			}
		default:
			form.Set(name, in.AttrOr("value", ""))
		}
	})

	userField := firstPresent(form, usernameFieldVariants)
	passField := firstPresent(form, passwordFieldVariants)
	if userField == "" {
		cand := sel.Find("input[type=text], input[type=email], input[type=tel], input[type=number]").First()
		userField = cand.AttrOr("name", "")
	}
	if passField == "" {
		cand := sel.Find("input[type=password]").First()
		passField = cand.AttrOr("name", "")
	}
	if userField == "" || passField == "" {
		return nil, ErrLoginFieldsUndetected
	}

	form.Set(userField, username)
	form.Set(passField, password)
	return form, nil
}

func firstPresent(f *Form, names []string) string {
	for _, n := range names {
		if f.Has(n) {
			return n
		}
	}
	return ""
}

// HasPasswordInput reports whether the document still renders a password
// input, which after a login POST means the portal re-rendered the login
// page: the credentials were rejected.
func HasPasswordInput(r io.Reader) bool {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return false
	}
	return doc.Find("input[type=password]").Length() > 0
}

// ExtractBookingForm locates the form whose input names include marker,
// captures default values for every input, select and textarea, overlays
// one player field per supplied identifier (1-indexed), and guarantees a
// non-empty transaction token so concurrent attempts cannot collide.
func ExtractBookingForm(r io.Reader, marker string, playerIDs []string) (*Form, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var formSel *goquery.Selection
	doc.Find("form").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found := false
		s.Find("input").EachWithBreak(func(_ int, in *goquery.Selection) bool {
			if strings.Contains(in.AttrOr("name", ""), marker) {
				found = true
				return false
			}
			return true
		})
		if found {
			formSel = s
			return false
		}
		return true
	})
	if formSel == nil {
		return nil, ErrBookingFormNotFound
	}

	form := newForm(strings.TrimSpace(formSel.AttrOr("action", "")))
	formSel.Find("input, select, textarea").Each(func(_ int, el *goquery.Selection) {
		name := el.AttrOr("name", "")
		if name == "" {
			return
		}
		switch goquery.NodeName(el) {
		case "select":
			opt := el.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = el.Find("option").First()
			}
			if opt.Length() > 0 {
				form.Set(name, opt.AttrOr("value", ""))
			} else if !form.Has(name) {
				form.Set(name, "")
			}
		case "textarea":
			form.Set(name, el.Text())
		default:
			switch strings.ToLower(el.AttrOr("type", "")) {
			case "checkbox", "radio":
				if _, checked := el.Attr("checked"); checked {
					form.Set(name, el.AttrOr("value", "on"))
				} else if !form.Has(name) {
					form.Set(name, "")
				}
			default:
				form.Set(name, el.AttrOr("value", ""))
			}
		}
	})

	for i, pid := range playerIDs {
		form.Set(fmt.Sprintf(playerFieldFmt, i+1), pid)
	}
	if form.Get(txTokenField) == "" {
		form.Set(txTokenField, newTxToken())
	}
	return form, nil
}

func newTxToken() string {
	return fmt.Sprintf("svc-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// DecodeBookingURL normalizes the opaque booking-token URL embedded in
// tee-sheet JSON. The origin HTML-escapes it, backslash-escapes slashes,
// and URL-encodes it twice; the exact unwind order matters for the result
// to resolve. Portal-specific; isolated here so a markup change is a
// localized fix.
func DecodeBookingURL(raw string) string {
	u := html.UnescapeString(raw)
	u = strings.ReplaceAll(u, `\/`, "/")
	for i := 0; i < 2; i++ {
		if dec, err := url.QueryUnescape(u); err == nil {
			u = dec
		}
	}
	if u != "" && !strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "http") {
		u = "/" + u
	}
	return u
}
