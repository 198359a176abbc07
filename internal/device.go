package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Device types reported by Classify.
const (
	DeviceTablet  = "tablet"
	DeviceMobile  = "mobile"
	DeviceDesktop = "desktop"
	DeviceUnknown = "unknown"
)

// MaxUserAgentLength bounds the stored user agent.
const MaxUserAgentLength = 500

var (
	tabletKeywords = []string{"tablet", "ipad", "playbook", "silk"}
	mobileKeywords = []string{"mobile", "android", "iphone", "ipad", "ipod", "blackberry", "windows phone"}
)

// Fingerprint identifies a device as the first 32 hex characters of
// sha256(ua + "_" + ip).
func Fingerprint(userAgent, ip string) string {
	sum := sha256.Sum256([]byte(userAgent + "_" + ip))
	return hex.EncodeToString(sum[:])[:32]
}

// Classify buckets a user agent. Tablet keywords win over mobile ones.
func Classify(userAgent string) string {
	if userAgent == "" {
		return DeviceUnknown
	}
	ua := strings.ToLower(userAgent)
	for _, kw := range tabletKeywords {
		if strings.Contains(ua, kw) {
			return DeviceTablet
		}
	}
	for _, kw := range mobileKeywords {
		if strings.Contains(ua, kw) {
			return DeviceMobile
		}
	}
	return DeviceDesktop
}

// DeviceName renders "OS - Browser" for display.
func DeviceName(userAgent string) string {
	if userAgent == "" {
		return "Unknown device"
	}
	ua := userAgent

	browser := "Unknown browser"
	switch {
	case strings.Contains(ua, "Edg"):
		browser = "Edge"
	case strings.Contains(ua, "Chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "Firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "Safari"):
		browser = "Safari"
	case strings.Contains(ua, "MSIE"), strings.Contains(ua, "Trident"):
		browser = "IE"
	}

	os := "Unknown OS"
	switch {
	case strings.Contains(ua, "Windows"):
		os = "Windows"
	case strings.Contains(ua, "Android"):
		os = "Android"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		os = "iOS"
	case strings.Contains(ua, "Mac"):
		os = "Mac"
	case strings.Contains(ua, "Linux"):
		os = "Linux"
	}

	return os + " - " + browser
}

// TruncateUserAgent cuts ua to MaxUserAgentLength bytes on a rune boundary.
func TruncateUserAgent(ua string) string {
	if len(ua) <= MaxUserAgentLength {
		return ua
	}
	cut := MaxUserAgentLength
	for cut > 0 && !isRuneStart(ua[cut]) {
		cut--
	}
	return ua[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
