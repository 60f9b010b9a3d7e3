package service

import (
	"fmt"
	"net/url"
	"strings"

	"shortlink-platform/internal/errs"
)

// verifyWhitelist 校验原始链接格式，并在白名单开启时校验跳转域名
func (s *LinkService) verifyWhitelist(originURL string) error {
	domain := extractDomain(originURL)
	if domain == "" {
		return errs.ErrWhitelistDenied
	}
	if !s.whiteList.Enabled {
		return nil
	}
	for _, allowed := range s.whiteList.Details {
		if domain == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w，请生成以下网站的跳转链接：%s", errs.ErrWhitelistDenied, s.whiteList.Names)
}

// extractDomain 从原始链接中取出域名，解析失败返回空串
func extractDomain(originURL string) string {
	u, err := url.Parse(originURL)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	host := u.Hostname()
	return strings.ToLower(host)
}
