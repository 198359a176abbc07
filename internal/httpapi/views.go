package httpapi

import (
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/fieldcrypt"
)

type accountView struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email,omitempty"`
	Role             string     `json:"role"`
	Disabled         bool       `json:"disabled"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP      string     `json:"last_login_ip,omitempty"`
	PasswordExpired  bool       `json:"password_expired"`
	CreatedAt        time.Time  `json:"created_at"`
}

func newAccountView(a *goGuard.Account) accountView {
	return accountView{
		ID:               a.ID,
		Username:         a.Username,
		Email:            fieldcrypt.MaskEmail(a.Email),
		Role:             string(a.Role),
		Disabled:         a.Disabled,
		TwoFactorEnabled: a.TwoFactorEnabled,
		LastLoginAt:      timePtr(a.LastLoginAt),
		LastLoginIP:      a.LastLoginIP,
		PasswordExpired:  a.PasswordExpired,
		CreatedAt:        a.CreatedAt,
	}
}

type deviceView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	FirstIP     string    `json:"first_ip"`
	LastLoginAt time.Time `json:"last_login_at"`
	LastLoginIP string    `json:"last_login_ip"`
	LoginCount  int       `json:"login_count"`
	Trusted     bool      `json:"trusted"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

func newDeviceViews(devices []goGuard.Device) []deviceView {
	out := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceView{
			ID:          d.ID,
			Name:        d.Name,
			Type:        d.Type,
			FirstIP:     d.FirstIP,
			LastLoginAt: d.LastLoginAt,
			LastLoginIP: d.LastLoginIP,
			LoginCount:  d.LoginCount,
			Trusted:     d.Trusted,
			Active:      d.Active,
			CreatedAt:   d.CreatedAt,
		})
	}
	return out
}

type incidentView struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Severity    string     `json:"severity"`
	Description string     `json:"description"`
	AccountID   string     `json:"account_id,omitempty"`
	Username    string     `json:"username,omitempty"`
	IP          string     `json:"ip"`
	UserAgent   string     `json:"user_agent,omitempty"`
	URL         string     `json:"url,omitempty"`
	Method      string     `json:"method,omitempty"`
	Status      int        `json:"status,omitempty"`
	Resolved    bool       `json:"resolved"`
	ResolvedBy  string     `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func newIncidentViews(items []goGuard.Incident) []incidentView {
	out := make([]incidentView, 0, len(items))
	for _, inc := range items {
		out = append(out, incidentView{
			ID:          inc.ID,
			Type:        string(inc.Type),
			Severity:    string(inc.Severity),
			Description: inc.Description,
			AccountID:   inc.AccountID,
			Username:    inc.Username,
			IP:          inc.IP,
			UserAgent:   inc.UserAgent,
			URL:         inc.URL,
			Method:      inc.Method,
			Status:      inc.Status,
			Resolved:    inc.Resolved,
			ResolvedBy:  inc.ResolvedBy,
			ResolvedAt:  timePtr(inc.ResolvedAt),
			CreatedAt:   inc.CreatedAt,
		})
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
