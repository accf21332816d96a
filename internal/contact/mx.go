package contact

import (
	"context"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// MXChecker reports whether a mail domain accepts mail.
type MXChecker interface {
	HasMX(ctx context.Context, domain string) bool
}

// DNSVerifier queries MX records directly against public resolvers.
type DNSVerifier struct {
	servers []string
	client  *dns.Client
}

// NewDNSVerifier creates a verifier querying servers in order.
func NewDNSVerifier(servers []string, timeout time.Duration) *DNSVerifier {
	if len(servers) == 0 {
		servers = []string{"8.8.8.8:53", "1.1.1.1:53"}
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &DNSVerifier{
		servers: servers,
		client:  &dns.Client{Timeout: timeout},
	}
}

// HasMX implements MXChecker. Any resolver answering with at least one
// record is enough.
func (v *DNSVerifier) HasMX(ctx context.Context, domain string) bool {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return false
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	msg.RecursionDesired = true

	for _, server := range v.servers {
		resp, _, err := v.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			zap.L().Debug("contact: mx lookup failed",
				zap.String("domain", domain),
				zap.String("server", server),
				zap.Error(err),
			)
			continue
		}
		if resp != nil && resp.Rcode == dns.RcodeSuccess && len(resp.Answer) > 0 {
			return true
		}
	}
	return false
}

func domainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return ""
}
