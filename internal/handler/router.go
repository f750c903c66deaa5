package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// NewEngine builds the gin engine. Forwarding headers are honoured only when
// the peer address falls inside trustedProxies; with none configured the
// client IP is always the connection's remote address.
func NewEngine(trustedProxies []string) (*gin.Engine, error) {
	r := gin.New()
	r.MaxMultipartMemory = 32 << 20
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}
	return r, nil
}
