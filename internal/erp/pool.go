package erp

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"fimbiz-sync/internal/database/models"
)

// Pool hands out one Client per ERP endpoint/credential pair. It is owned by
// the composition root and injected everywhere a client is needed. Clients
// are reused for the life of the process; a shop pointing at a new endpoint
// simply gets a new entry, stale entries cost one idle HTTP pool each.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*Client

	defaultBaseURL string
	defaultAPIKey  string
	timeout        time.Duration
	log            *zap.Logger
}

func NewPool(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *Pool {
	return &Pool{
		clients:        make(map[string]*Client),
		defaultBaseURL: baseURL,
		defaultAPIKey:  apiKey,
		timeout:        timeout,
		log:            log,
	}
}

// ForShop resolves the shop's endpoint and credential, falling back to the
// global default when the shop has none configured.
func (p *Pool) ForShop(shop *models.Shop) *Client {
	baseURL := p.defaultBaseURL
	apiKey := p.defaultAPIKey
	if shop != nil {
		if shop.ERPBaseURL != nil && *shop.ERPBaseURL != "" {
			baseURL = *shop.ERPBaseURL
		}
		if shop.ERPAPIKey != nil && *shop.ERPAPIKey != "" {
			apiKey = *shop.ERPAPIKey
		}
	}
	return p.get(baseURL, apiKey)
}

func (p *Pool) Default() *Client {
	return p.get(p.defaultBaseURL, p.defaultAPIKey)
}

func (p *Pool) get(baseURL, apiKey string) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := baseURL + "\x00" + apiKey
	if c, ok := p.clients[key]; ok {
		return c
	}
	c := NewClient(baseURL, apiKey, p.timeout, p.log)
	p.clients[key] = c
	return c
}
