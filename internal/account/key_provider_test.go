package account

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"gaslessSwap/internal/model"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func testKeyConfig() KeyConfig {
	return KeyConfig{
		PrivateKey:   "0x" + testKey,
		Factory:      "0x9406Cc6185a346906296840746125a0E44976454",
		InitCodeHash: "0x" + common.Bytes2Hex(crypto.Keccak256([]byte("account-init-code"))),
	}
}

func TestKeyProviderDerivesDistinctAccount(t *testing.T) {
	ctx := context.Background()
	provider := NewKeyProvider(testKeyConfig())

	signer, err := provider.Signer(ctx)
	require.NoError(t, err)
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)

	account, err := provider.DeriveAccountAddress(ctx, signer)
	require.NoError(t, err)
	require.NotEqual(t, signer, account)

	again, err := provider.DeriveAccountAddress(ctx, signer)
	require.NoError(t, err)
	require.Equal(t, account, again)

	cfg := testKeyConfig()
	cfg.Index = 1
	other, err := NewKeyProvider(cfg).DeriveAccountAddress(ctx, signer)
	require.NoError(t, err)
	require.NotEqual(t, account, other)
}

func TestKeyProviderConfigErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewKeyProvider(KeyConfig{}).Signer(ctx)
	require.Equal(t, model.ErrorKindConfigurationMissing, model.KindOf(err))

	_, err = NewKeyProvider(KeyConfig{PrivateKey: "zz"}).Signer(ctx)
	require.Equal(t, model.ErrorKindSignerUnavailable, model.KindOf(err))

	cfg := testKeyConfig()
	cfg.Factory = ""
	_, err = NewKeyProvider(cfg).DeriveAccountAddress(ctx, common.HexToAddress("0x01"))
	require.Equal(t, model.ErrorKindConfigurationMissing, model.KindOf(err))

	cfg = testKeyConfig()
	cfg.Factory = "not-an-address"
	_, err = NewKeyProvider(cfg).DeriveAccountAddress(ctx, common.HexToAddress("0x01"))
	require.Equal(t, model.ErrorKindConfigurationMissing, model.KindOf(err))
}

func TestKeyProviderSignHash(t *testing.T) {
	provider := NewKeyProvider(testKeyConfig())
	hash := crypto.Keccak256Hash([]byte("payload"))

	sig, err := provider.SignHash(hash)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	require.NoError(t, err)
	signer, err := provider.Signer(context.Background())
	require.NoError(t, err)
	require.Equal(t, signer, crypto.PubkeyToAddress(*pub))
}

func TestManagerWithKeyProvider(t *testing.T) {
	m := NewManager(NewKeyProvider(testKeyConfig()), nil)
	require.NoError(t, m.Initialize(context.Background()))
	id := m.Identity()
	require.NotEqual(t, id.Signer, id.Account)
	require.True(t, id.HasAccount())
}
