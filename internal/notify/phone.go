package notify

import (
	"fmt"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// NormalizePhone parses phone in the context of region (e.g. "IN") and
// returns it in E.164 form.
func NormalizePhone(phone, region string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", fmt.Errorf("owner has no phone number")
	}
	num, err := libphonenumber.Parse(phone, region)
	if err != nil {
		return "", fmt.Errorf("invalid phone %q: %w", phone, err)
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone %q", phone)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}
