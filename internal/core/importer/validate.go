package importer

import (
	"net/url"
	"strings"

	"recipe-importer/internal/pkg/common"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// DefaultDomains 支援匯入的食譜網站
var DefaultDomains = []string{"ica.se", "koket.se"}

// invalidURLMessage 網址不合法或不支援時顯示的訊息
const invalidURLMessage = "Please enter a valid recipe URL from ICA or Koket."

// ValidateURL 檢查網址格式，且其可註冊網域必須在允許清單內
func ValidateURL(raw string, domains []string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, common.ErrUnsupportedSource.WithMessage("URL is required.")
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, common.ErrUnsupportedSource.WithMessage(invalidURLMessage)
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if !strings.Contains(host, ".") {
		return nil, common.ErrUnsupportedSource.WithMessage(invalidURLMessage)
	}
	domain, err := publicsuffix.Domain(host)
	if err != nil {
		return nil, common.ErrUnsupportedSource.WithMessage(invalidURLMessage)
	}

	for _, d := range domains {
		if strings.EqualFold(strings.TrimSpace(d), domain) {
			return u, nil
		}
	}
	return nil, common.ErrUnsupportedSource.WithMessage(invalidURLMessage)
}
