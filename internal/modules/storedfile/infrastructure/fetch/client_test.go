package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublic(t *testing.T) {
	blocked := []string{
		"127.0.0.1", "10.1.2.3", "172.16.0.1", "192.168.1.1", "169.254.169.254",
		"100.64.0.1", "0.0.0.0", "0.1.2.3", "224.0.0.1", "::1", "fe80::1", "fc00::1",
		"::ffff:127.0.0.1", "::",
	}
	for _, s := range blocked {
		assert.False(t, Public(netip.MustParseAddr(s)), s)
	}
	for _, s := range []string{"93.184.216.34", "8.8.8.8", "2606:4700::1111"} {
		assert.True(t, Public(netip.MustParseAddr(s)), s)
	}
}

func TestNewClient_RefusesLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("internal"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = NewClient(5*time.Second, false).Do(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBlockedAddress)

	resp, err := NewClient(5*time.Second, true).Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGuard(t *testing.T) {
	assert.ErrorIs(t, guard("tcp", "127.0.0.1:8080", nil), domain.ErrBlockedAddress)
	assert.ErrorIs(t, guard("tcp", "[fe80::1]:80", nil), domain.ErrBlockedAddress)
	assert.ErrorIs(t, guard("tcp", "not-an-address", nil), domain.ErrBlockedAddress)
	assert.NoError(t, guard("tcp", "93.184.216.34:443", nil))
}
