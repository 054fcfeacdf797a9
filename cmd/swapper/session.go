package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"gaslessSwap/internal/account"
	"gaslessSwap/internal/balance"
	"gaslessSwap/internal/chain"
	"gaslessSwap/internal/config"
	"gaslessSwap/internal/dex"
	"gaslessSwap/internal/model"
	"gaslessSwap/internal/relay"
	"gaslessSwap/internal/settlement"
	"gaslessSwap/internal/storage"
	"gaslessSwap/internal/storage/postgres"
)

// session is one connection to a deployed ledger. arm adds the signing account.
type session struct {
	cfg    config.SwapConfig
	logger *zap.Logger

	chain  *chain.Client
	relay  *chain.Client
	remote *dex.RemoteLedger
	tokenA model.Token
	tokenB model.Token

	keys     *account.KeyProvider
	accounts *account.Manager
	cache    *balance.Cache
	store    *postgres.Store
	client   *settlement.Client
}

func openSession(ctx context.Context, cfg config.SwapConfig, logger *zap.Logger) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !common.IsHexAddress(cfg.Ledger) {
		return nil, fmt.Errorf("invalid ledger address: %s", cfg.Ledger)
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	s := &session{cfg: cfg, logger: logger, chain: chainClient}
	s.remote = dex.NewRemoteLedger(chainClient, common.HexToAddress(cfg.Ledger))

	addrA, addrB, err := s.remote.Tokens(ctx)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("ledger tokens: %w", err)
	}
	if err := checkPinned(cfg.TokenA, addrA); err != nil {
		s.Close()
		return nil, err
	}
	if err := checkPinned(cfg.TokenB, addrB); err != nil {
		s.Close()
		return nil, err
	}
	metas := dex.NewTokenMetaCache()
	for _, addr := range []common.Address{addrA, addrB} {
		meta, err := dex.FetchTokenMeta(ctx, chainClient, addr, logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("token metadata %s: %w", addr.Hex(), err)
		}
		metas.Set(addr, meta)
	}
	s.tokenA, _ = metas.Get(addrA)
	s.tokenB, _ = metas.Get(addrB)

	logger.Info("ledger session open",
		zap.String("ledger", s.remote.Address().Hex()),
		zap.String("token_a", s.tokenA.Label()),
		zap.String("token_b", s.tokenB.Label()),
	)
	return s, nil
}

// arm initializes the smart account and wires the settlement client.
func (s *session) arm(ctx context.Context) error {
	s.keys = account.NewKeyProvider(account.KeyConfig{
		PrivateKey:   s.cfg.PrivateKey,
		Factory:      s.cfg.AccountFactory,
		InitCodeHash: s.cfg.AccountInitCodeHash,
		Index:        s.cfg.AccountIndex,
	})
	s.accounts = account.NewManager(s.keys, s.logger)
	if err := s.accounts.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize account: %w", err)
	}

	relayBackend := s.chain
	if s.cfg.RelayURL != "" && s.cfg.RelayURL != s.cfg.RPCURL {
		relayClient, err := chain.NewClient(ctx, s.cfg.RelayURL)
		if err != nil {
			return fmt.Errorf("connect relay: %w", err)
		}
		s.relay = relayClient
		relayBackend = relayClient
	}
	channel, err := relay.NewRPCRelayer(relayBackend, s.chain, relay.RPCConfig{
		Method:       s.cfg.RelayMethod,
		PollInterval: s.cfg.PollInterval,
		Signer:       s.keys,
	}, s.logger)
	if err != nil {
		return err
	}

	journal, err := s.journal(ctx)
	if err != nil {
		return err
	}

	s.cache = balance.New(s.remote, []model.Token{s.tokenA, s.tokenB}, balance.RetryPolicy{
		MaxAttempts: s.cfg.RefreshAttempts,
		Delay:       s.cfg.RefreshDelay,
	}, s.logger)

	s.client, err = settlement.New(settlement.Config{
		Ledger:         s.remote.Address(),
		TokenA:         s.tokenA,
		TokenB:         s.tokenB,
		ReceiptTimeout: s.cfg.ReceiptTimeout,
	}, settlement.Deps{
		Accounts: s.accounts,
		Channel:  channel,
		Reader:   s.remote,
		Balances: s.cache,
		Journal:  journal,
		Logger:   s.logger,
	})
	return err
}

func (s *session) journal(ctx context.Context) (storage.Journal, error) {
	if s.cfg.PGDSN != "" {
		store, err := openStore(ctx, s.cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		s.store = store
		return store, nil
	}
	if s.cfg.Journal == "" {
		return nil, nil
	}
	return storage.NewJsonlStorage(s.cfg.Journal), nil
}

func (s *session) account() common.Address {
	if s.accounts == nil {
		return common.Address{}
	}
	addr, _ := s.accounts.Address()
	return addr
}

// token resolves a symbol or address argument to one side of the pair.
func (s *session) token(arg string) (model.Token, error) {
	return resolveToken([]model.Token{s.tokenA, s.tokenB}, arg)
}

func (s *session) Close() {
	if s.client != nil {
		s.client.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
	if s.relay != nil {
		s.relay.Close()
	}
	if s.chain != nil {
		s.chain.Close()
	}
}

func openStore(ctx context.Context, dsn string) (*postgres.Store, error) {
	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// checkPinned fails when a configured token address disagrees with the ledger.
func checkPinned(pinned string, actual common.Address) error {
	if pinned == "" {
		return nil
	}
	if !common.IsHexAddress(pinned) || common.HexToAddress(pinned) != actual {
		return model.NewKindError(model.ErrorKindUnsupportedPair,
			fmt.Errorf("configured token %s does not match ledger token %s", pinned, actual.Hex()))
	}
	return nil
}

func resolveToken(tokens []model.Token, arg string) (model.Token, error) {
	arg = strings.TrimSpace(arg)
	if tok, ok := model.TokenBySymbol(tokens, arg); ok {
		return tok, nil
	}
	if common.IsHexAddress(arg) {
		addr := common.HexToAddress(arg)
		for _, tok := range tokens {
			if tok.Address == addr {
				return tok, nil
			}
		}
	}
	return model.Token{}, model.NewKindError(model.ErrorKindUnsupportedPair, fmt.Errorf("token %q is not traded by this ledger", arg))
}
