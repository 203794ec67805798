package verify

import (
	"regexp"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is assumed for numbers entered without a country code.
const DefaultRegion = "US"

var phoneChars = regexp.MustCompile(`^\+?[\d\s().-]+$`)

// NormalizePhone returns raw in E.164 form, or "" when it is not a plausible
// phone number.
func NormalizePhone(raw string) string {
	if !phoneChars.MatchString(raw) {
		return ""
	}
	num, err := phonenumbers.Parse(raw, DefaultRegion)
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

func IsPhoneNumber(raw string) bool {
	return NormalizePhone(raw) != ""
}
