// internal/phone/phone.go
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"

	appErrors "github.com/waflowhq/waflow-backend/internal/errors"
)

// Normalize parses a raw phone number and returns its E.164 form. The default
// region is applied only when the input carries no country prefix. Every
// downstream key (campaign audience, master directory, webhook correlation)
// uses this normalized form; input that cannot be normalized is rejected
// before persistence.
func Normalize(raw, defaultRegion string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", appErrors.NewInvalidPhone(raw)
	}

	num, err := phonenumbers.Parse(trimmed, strings.ToUpper(defaultRegion))
	if err != nil {
		return "", appErrors.NewInvalidPhone(raw)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", appErrors.NewInvalidPhone(raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// CountryCode returns the numeric calling code ("254", "55") of an already
// normalized E.164 number.
func CountryCode(msisdn string) string {
	num, err := phonenumbers.Parse(msisdn, "")
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d", num.GetCountryCode())
}

// Variants returns the lookup forms of an MSISDN: with and without the leading
// "+". The gateway reports sender numbers without the plus; our stored keys
// carry it.
func Variants(msisdn string) []string {
	bare := strings.TrimPrefix(msisdn, "+")
	return []string{"+" + bare, bare}
}
