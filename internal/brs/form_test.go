package brs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginPageHTML = `
<html><body>
<form name="tracking" action="/track"><input type="hidden" name="noise" value="x"></form>
<form name="login_form" action="login/check" method="post">
  <input type="hidden" name="login_form[_token]" value="csrf123">
  <input type="text" name="login_form[username]" value="">
  <input type="password" name="login_form[password]">
  <input type="checkbox" name="login_form[remember]" value="1">
  <input type="checkbox" name="login_form[tos]" value="1" checked>
</form>
</body></html>`

func TestExtractLoginFormKnownFields(t *testing.T) {
	// The tracking form carries a name attribute too, so it wins the
	// "first form with a name" rule; it has no password field. Strip its
	// name to exercise the realistic page ordering instead.
	html := strings.Replace(loginPageHTML, `<form name="tracking"`, `<form`, 1)

	form, err := ExtractLoginForm(strings.NewReader(html), "member1", "pin99")
	require.NoError(t, err)

	assert.Equal(t, "login/check", form.Action)
	assert.Equal(t, "member1", form.Get("login_form[username]"))
	assert.Equal(t, "pin99", form.Get("login_form[password]"))
	assert.Equal(t, "csrf123", form.Get("login_form[_token]"))
	// unchecked boxes don't post; checked ones keep their value
	assert.False(t, form.Has("login_form[remember]"))
	assert.Equal(t, "1", form.Get("login_form[tos]"))
}

func TestExtractLoginFormTypeFallback(t *testing.T) {
	html := `
<form action="/auth">
  <input type="email" name="weird_user_field">
  <input type="password" name="weird_pass_field">
</form>`
	form, err := ExtractLoginForm(strings.NewReader(html), "u", "p")
	require.NoError(t, err)
	assert.Equal(t, "u", form.Get("weird_user_field"))
	assert.Equal(t, "p", form.Get("weird_pass_field"))
}

func TestExtractLoginFormErrors(t *testing.T) {
	_, err := ExtractLoginForm(strings.NewReader("<html><body>no forms</body></html>"), "u", "p")
	assert.ErrorIs(t, err, ErrLoginFormNotFound)

	_, err = ExtractLoginForm(strings.NewReader(`<form><input type="submit" name="go"></form>`), "u", "p")
	assert.ErrorIs(t, err, ErrLoginFieldsUndetected)
}

func TestHasPasswordInput(t *testing.T) {
	assert.True(t, HasPasswordInput(strings.NewReader(`<form><input type="password" name="p"></form>`)))
	assert.False(t, HasPasswordInput(strings.NewReader(`<p>Welcome back</p>`)))
}

const bookingPageHTML = `
<html><body>
<form name="search" action="/search"><input type="text" name="q"></form>
<form name="member_booking_form" action="/fairview/bookings/store/1/20260905/0830" method="post">
  <input type="hidden" name="member_booking_form[_token]" value="tok">
  <input type="text" name="member_booking_form[player_1]" value="">
  <input type="text" name="member_booking_form[player_2]" value="">
  <input type="text" name="member_booking_form[player_3]" value="">
  <input type="text" name="member_booking_form[player_4]" value="">
  <select name="member_booking_form[holes]">
    <option value="9">9</option>
    <option value="18" selected>18</option>
  </select>
  <select name="member_booking_form[buggy]">
    <option value="no">No</option>
    <option value="yes">Yes</option>
  </select>
  <input type="checkbox" name="member_booking_form[guest]" value="1">
  <textarea name="member_booking_form[notes]">bring clubs</textarea>
</form>
</body></html>`

func TestExtractBookingForm(t *testing.T) {
	form, err := ExtractBookingForm(strings.NewReader(bookingPageHTML), BookingFormMarker, []string{"101", "102"})
	require.NoError(t, err)

	assert.Equal(t, "/fairview/bookings/store/1/20260905/0830", form.Action)
	assert.Equal(t, "tok", form.Get("member_booking_form[_token]"))
	assert.Equal(t, "101", form.Get("member_booking_form[player_1]"))
	assert.Equal(t, "102", form.Get("member_booking_form[player_2]"))
	assert.Equal(t, "", form.Get("member_booking_form[player_3]"))
	// selected option wins; otherwise the first
	assert.Equal(t, "18", form.Get("member_booking_form[holes]"))
	assert.Equal(t, "no", form.Get("member_booking_form[buggy]"))
	assert.Equal(t, "", form.Get("member_booking_form[guest]"))
	assert.Equal(t, "bring clubs", form.Get("member_booking_form[notes]"))

	// the transaction token is synthesized when the form has none
	tx := form.Get("member_booking_form[vendor-tx-code]")
	assert.True(t, strings.HasPrefix(tx, "svc-"), tx)
}

func TestExtractBookingFormKeepsExistingToken(t *testing.T) {
	html := `
<form action="/b">
  <input type="text" name="member_booking_form[player_1]" value="">
  <input type="hidden" name="member_booking_form[vendor-tx-code]" value="existing-tx">
</form>`
	form, err := ExtractBookingForm(strings.NewReader(html), BookingFormMarker, []string{"7"})
	require.NoError(t, err)
	assert.Equal(t, "existing-tx", form.Get("member_booking_form[vendor-tx-code]"))
}

func TestExtractBookingFormTokensUnique(t *testing.T) {
	html := `<form action="/b"><input type="text" name="member_booking_form[player_1]" value=""></form>`
	a, err := ExtractBookingForm(strings.NewReader(html), BookingFormMarker, []string{"7"})
	require.NoError(t, err)
	b, err := ExtractBookingForm(strings.NewReader(html), BookingFormMarker, []string{"7"})
	require.NoError(t, err)
	assert.NotEqual(t, a.Get("member_booking_form[vendor-tx-code]"), b.Get("member_booking_form[vendor-tx-code]"))
}

func TestExtractBookingFormNotFound(t *testing.T) {
	_, err := ExtractBookingForm(strings.NewReader(`<form action="/x"><input name="other"></form>`), BookingFormMarker, nil)
	assert.ErrorIs(t, err, ErrBookingFormNotFound)
}

func TestFormEncodeOrder(t *testing.T) {
	f := newForm("/a")
	f.Set("z", "1")
	f.Set("a", "2")
	f.Set("z", "3") // overwrite keeps position
	assert.Equal(t, "z=3&a=2", f.Encode())
	assert.Equal(t, []string{"z", "a"}, f.Names())
}

func TestDecodeBookingURL(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "double encoded with escaped slashes",
			in:   `fairview\/bookings\/store\/1\/20260905\/0830%253Ftoken%253Dabc%252Bdef`,
			want: "/fairview/bookings/store/1/20260905/0830?token=abc+def",
		},
		{
			name: "html entities",
			in:   "bookings/store/1?a=1&amp;b=2",
			want: "/bookings/store/1?a=1&b=2",
		},
		{
			name: "already clean rooted path",
			in:   "/fairview/bookings/store/1",
			want: "/fairview/bookings/store/1",
		},
		{
			name: "absolute url untouched",
			in:   "https://members.example.com/x/y",
			want: "https://members.example.com/x/y",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DecodeBookingURL(tc.in))
		})
	}
}
