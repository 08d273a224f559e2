package internal

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateProxyURL(t *testing.T) {
	assert.NoError(t, ValidateProxyURL(""))
	assert.NoError(t, ValidateProxyURL("http://127.0.0.1:7897"))
	assert.NoError(t, ValidateProxyURL("socks5://localhost:1080"))
	assert.Error(t, ValidateProxyURL("ftp://127.0.0.1:21"))
	assert.Error(t, ValidateProxyURL("http://"))
}

func TestCreateProxyHTTPClient(t *testing.T) {
	client, err := CreateProxyHTTPClient("http://127.0.0.1:7897", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	req := &http.Request{URL: &url.URL{Scheme: "https", Host: "api.tenderly.co"}}
	proxy, err := transport.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7897", proxy.Host)

	_, err = CreateProxyHTTPClient("gopher://x", time.Second)
	assert.Error(t, err)
}

func TestSortedSet(t *testing.T) {
	assert.Equal(t, []string{"0x01", "0x02"}, SortedSet([]string{"0x02", "0x01", "0x02"}))
	assert.Equal(t, []string{}, SortedSet(nil))
}

func TestParseNetwork(t *testing.T) {
	assert.Equal(t, NetworkBSC, ParseNetwork(" BSC "))
	assert.Equal(t, NetworkUnknown, ParseNetwork("solana"))
}

func TestLossAmount_String(t *testing.T) {
	var missing *LossAmount
	assert.Equal(t, "Unknown", missing.String())
	assert.Equal(t, "$5,000", (&LossAmount{Amount: "5,000", Unit: "$"}).String())
	assert.Equal(t, "12 WETH", (&LossAmount{Amount: "12", Unit: "WETH"}).String())
}
