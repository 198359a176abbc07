package fieldcrypt

import "strings"

// MaskEmail keeps the first two characters of the local part.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if email == "" || at < 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if local == "" {
		return email
	}
	keep := 2
	if len(local) <= 2 {
		keep = 1
	}
	return local[:keep] + "***@" + domain
}

// MaskAddress is the short form shown when a verification code is sent:
// the first three characters, then the domain.
func MaskAddress(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	prefix := email
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return prefix + "***" + email[at+1:]
}

// MaskPhone keeps the first three and last four digits.
func MaskPhone(phone string) string {
	if len(phone) < 7 {
		return phone
	}
	return phone[:3] + "****" + phone[len(phone)-4:]
}

// MaskIDCard keeps the first and last four characters.
func MaskIDCard(id string) string {
	if len(id) < 8 {
		return id
	}
	return id[:4] + strings.Repeat("*", 10) + id[len(id)-4:]
}
