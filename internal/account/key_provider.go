package account

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"gaslessSwap/internal/model"
)

// KeyConfig configures a KeyProvider.
type KeyConfig struct {
	PrivateKey   string
	Factory      string
	InitCodeHash string
	Index        uint64
}

// KeyProvider signs with a local ECDSA key and derives the smart account counterfactually
// as CREATE2(factory, keccak256(signer || index), initCodeHash).
type KeyProvider struct {
	key          *ecdsa.PrivateKey
	keyErr       error
	factory      common.Address
	initCodeHash common.Hash
	index        uint64
	configErr    error
}

// NewKeyProvider parses cfg. Parsing errors are reported by Signer and DeriveAccountAddress
// so they surface through the account lifecycle.
func NewKeyProvider(cfg KeyConfig) *KeyProvider {
	p := &KeyProvider{index: cfg.Index}

	raw := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x")
	if raw == "" {
		p.keyErr = model.NewKindError(model.ErrorKindConfigurationMissing, errors.New("private key is required"))
	} else if key, err := crypto.HexToECDSA(raw); err != nil {
		p.keyErr = model.NewKindError(model.ErrorKindSignerUnavailable, fmt.Errorf("parse private key: %w", err))
	} else {
		p.key = key
	}

	factory := strings.TrimSpace(cfg.Factory)
	initCodeHash := strings.TrimSpace(cfg.InitCodeHash)
	switch {
	case factory == "" || initCodeHash == "":
		p.configErr = model.NewKindError(model.ErrorKindConfigurationMissing, errors.New("account factory and init code hash are required"))
	case !common.IsHexAddress(factory):
		p.configErr = model.NewKindError(model.ErrorKindConfigurationMissing, fmt.Errorf("invalid account factory: %s", factory))
	default:
		p.factory = common.HexToAddress(factory)
		p.initCodeHash = common.HexToHash(initCodeHash)
	}
	return p
}

// Signer returns the address of the configured key.
func (p *KeyProvider) Signer(ctx context.Context) (common.Address, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, err
	}
	if p.keyErr != nil {
		return common.Address{}, p.keyErr
	}
	return crypto.PubkeyToAddress(p.key.PublicKey), nil
}

// DeriveAccountAddress computes the counterfactual account address of signer.
func (p *KeyProvider) DeriveAccountAddress(ctx context.Context, signer common.Address) (common.Address, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, err
	}
	if p.configErr != nil {
		return common.Address{}, p.configErr
	}
	return AccountAddress(p.factory, p.initCodeHash, signer, p.index), nil
}

// SignHash signs a 32-byte digest with the configured key.
func (p *KeyProvider) SignHash(hash common.Hash) ([]byte, error) {
	if p.keyErr != nil {
		return nil, p.keyErr
	}
	return crypto.Sign(hash.Bytes(), p.key)
}

// AccountAddress returns CREATE2(factory, keccak256(signer || uint256(index)), initCodeHash).
func AccountAddress(factory common.Address, initCodeHash common.Hash, signer common.Address, index uint64) common.Address {
	salt := crypto.Keccak256Hash(signer.Bytes(), math.U256Bytes(new(big.Int).SetUint64(index)))
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}
