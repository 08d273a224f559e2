package trace

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/poc-excavator/src/internal"
	pipeerr "github.com/admi-n/poc-excavator/src/internal/errors"
	"github.com/admi-n/poc-excavator/src/internal/logging"
)

const testTx = "0x1111111111111111111111111111111111111111111111111111111111111111"

func TestChainID(t *testing.T) {
	assert.Equal(t, 56, ChainID(internal.NetworkBSC))
	assert.Equal(t, 8453, ChainID(internal.NetworkBase))
	assert.Equal(t, 1, ChainID(internal.NetworkUnknown))
}

func TestTenderlyClient_FetchTrace(t *testing.T) {
	var gotPath, gotAuth, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("X-Access-Key")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"transaction_id":"` + testTx + `","block_number":42}`))
	}))
	defer srv.Close()

	client, err := NewTenderlyClient(TenderlyConfig{
		BaseURL:     srv.URL + "/api/v1/public-contract/",
		AccessKey:   "key",
		BearerToken: "token",
	}, logging.Discard())
	require.NoError(t, err)
	defer client.Close()

	ev, err := client.FetchTrace(context.Background(), testTx, internal.NetworkBSC)
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/public-contract/56/trace/"+testTx, gotPath)
	assert.Equal(t, "Bearer token", gotAuth)
	assert.Equal(t, "key", gotKey)
	assert.Equal(t, testTx, ev["transaction_id"])
}

func TestTenderlyClient_Failures(t *testing.T) {
	status := http.StatusInternalServerError
	body := `{"error":"boom"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	client, err := NewTenderlyClient(TenderlyConfig{BaseURL: srv.URL}, logging.Discard())
	require.NoError(t, err)

	_, err = client.FetchTrace(context.Background(), testTx, internal.NetworkEthereum)
	require.Error(t, err)
	assert.True(t, pipeerr.IsUnavailable(err))

	status, body = http.StatusOK, `["not", "an", "object"]`
	_, err = client.FetchTrace(context.Background(), testTx, internal.NetworkEthereum)
	require.Error(t, err)
	assert.True(t, pipeerr.IsKind(err, pipeerr.KindMalformedPayload))
}

type stubProvider struct {
	name  string
	ev    Evidence
	err   error
	calls int
}

func (s *stubProvider) FetchTrace(ctx context.Context, txHash string, network internal.Network) (Evidence, error) {
	s.calls++
	return s.ev, s.err
}

func (s *stubProvider) Name() string { return s.name }

func TestChainProvider(t *testing.T) {
	failing := &stubProvider{name: "a", err: errors.New("down")}
	empty := &stubProvider{name: "b"}
	good := &stubProvider{name: "c", ev: Evidence{"transaction_id": testTx}}
	never := &stubProvider{name: "d", ev: Evidence{"transaction_id": "other"}}

	chain := NewChainProvider(logging.Discard(), failing, empty, good, never)
	assert.Equal(t, "a -> b -> c -> d", chain.Name())

	ev, err := chain.FetchTrace(context.Background(), testTx, internal.NetworkEthereum)
	require.NoError(t, err)
	assert.Equal(t, testTx, ev["transaction_id"])
	assert.Equal(t, 0, never.calls)

	ev, err = NewChainProvider(logging.Discard(), failing).FetchTrace(context.Background(), testTx, internal.NetworkEthereum)
	assert.Nil(t, ev)
	assert.True(t, pipeerr.IsUnavailable(err))

	ev, err = NewChainProvider(logging.Discard(), empty).FetchTrace(context.Background(), testTx, internal.NetworkEthereum)
	assert.Nil(t, ev)
	assert.NoError(t, err)
}

type fakeNode struct {
	receipt *types.Receipt
	tx      *types.Transaction
	closed  bool
}

func (f *fakeNode) TransactionReceipt(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	if f.receipt == nil {
		return nil, errors.New("not found")
	}
	return f.receipt, nil
}

func (f *fakeNode) TransactionByHash(ctx context.Context, h common.Hash) (*types.Transaction, bool, error) {
	return f.tx, false, nil
}

func (f *fakeNode) Close() { f.closed = true }

func TestRPCProvider_FetchTrace(t *testing.T) {
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	node := &fakeNode{
		receipt: &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(123),
			GasUsed:     21000,
			Logs: []*types.Log{{
				Address: to,
				Topics:  []common.Hash{common.HexToHash("0x01")},
				Data:    []byte{0xbe, 0xef},
			}},
		},
		tx: types.NewTx(&types.LegacyTx{Nonce: 1, To: &to, Value: big.NewInt(5), Gas: 50000, GasPrice: big.NewInt(7), Data: []byte{0xaa}}),
	}

	var dialed string
	p := NewRPCProviderWithDialer(
		map[internal.Network]string{internal.NetworkEthereum: "http://node"},
		func(ctx context.Context, url string) (ReceiptSource, error) {
			dialed = url
			return node, nil
		},
		logging.Discard(),
	)

	ev, err := p.FetchTrace(context.Background(), testTx, internal.NetworkEthereum)
	require.NoError(t, err)
	assert.Equal(t, "http://node", dialed)

	out := NewNormalizer(DefaultNormalizerConfig()).Normalize(ev)
	assert.Contains(t, out, "- **Block Number**: 123")
	assert.Contains(t, out, "- **Gas Used**: 21000")
	assert.Contains(t, out, "- **Contract Address**: 0x2222222222222222222222222222222222222222")
	assert.Contains(t, out, "- **Gas Price**: 7")
	assert.Contains(t, out, "  - Data: 0xbeef")

	_, err = p.FetchTrace(context.Background(), testTx, internal.NetworkBSC)
	assert.True(t, pipeerr.IsUnavailable(err))

	require.NoError(t, p.Close())
	assert.True(t, node.closed)
}
