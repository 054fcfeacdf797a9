package account

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"gaslessSwap/internal/model"
)

// SigningProvider supplies the signing identity and the smart-account address bound to it.
type SigningProvider interface {
	Signer(ctx context.Context) (common.Address, error)
	DeriveAccountAddress(ctx context.Context, signer common.Address) (common.Address, error)
}

// Identity is a snapshot of the smart-account lifecycle.
type Identity struct {
	Signer    common.Address
	Account   common.Address
	Readiness model.Readiness
	LastError model.ErrorKind
}

// HasAccount reports whether an account address has been derived.
func (i Identity) HasAccount() bool {
	return i.Account != (common.Address{})
}

// Manager drives Uninitialized -> Initializing -> Ready, with Errored on fault.
type Manager struct {
	provider SigningProvider
	logger   *zap.Logger

	mu         sync.RWMutex
	identity   Identity
	generation uint64
	lastErr    error
	observers  []func(Identity)
}

// NewManager creates a manager in the Uninitialized state.
func NewManager(provider SigningProvider, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		provider: provider,
		logger:   logger,
		identity: Identity{Readiness: model.ReadinessUninitialized},
	}
}

// OnChange registers fn to observe every readiness transition.
func (m *Manager) OnChange(fn func(Identity)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// Initialize obtains the signer, derives the account address and checks that they differ.
// It is a no-op when already Ready. An Errored manager must be disconnected first.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	switch m.identity.Readiness {
	case model.ReadinessReady:
		m.mu.Unlock()
		return nil
	case model.ReadinessInitializing:
		m.mu.Unlock()
		return model.NewKindError(model.ErrorKindOperationInProgress, errors.New("account initialization in progress"))
	case model.ReadinessErrored:
		kind := m.identity.LastError
		m.mu.Unlock()
		return model.NewKindError(model.ErrorKindAccountNotReady, fmt.Errorf("account errored (%s), disconnect first", kind))
	}
	m.generation++
	gen := m.generation
	m.identity = Identity{Readiness: model.ReadinessInitializing}
	m.lastErr = nil
	snapshot := m.identity
	m.mu.Unlock()
	m.notify(snapshot)

	signer, account, err := m.resolve(ctx)
	if ferr := m.finish(gen, Identity{Signer: signer, Account: account, Readiness: model.ReadinessReady}, err); ferr != nil {
		return ferr
	}
	return err
}

func (m *Manager) resolve(ctx context.Context) (common.Address, common.Address, error) {
	if m.provider == nil {
		return common.Address{}, common.Address{}, model.NewKindError(model.ErrorKindConfigurationMissing, errors.New("signing provider not configured"))
	}

	signer, err := m.provider.Signer(ctx)
	if err != nil {
		return common.Address{}, common.Address{}, classify(err, model.ErrorKindSignerUnavailable, "get signer")
	}
	if signer == (common.Address{}) {
		return common.Address{}, common.Address{}, model.NewKindError(model.ErrorKindSignerUnavailable, errors.New("provider returned zero signer"))
	}

	account, err := m.provider.DeriveAccountAddress(ctx, signer)
	if err != nil {
		return signer, common.Address{}, classify(err, model.ErrorKindProviderRejected, "derive account address")
	}
	if account == (common.Address{}) {
		return signer, common.Address{}, model.NewKindError(model.ErrorKindProviderRejected, errors.New("provider returned zero account address"))
	}
	if account == signer {
		return signer, account, model.NewKindError(
			model.ErrorKindAbstractionInvariantViolation,
			fmt.Errorf("account address %s equals signer address", account.Hex()),
		)
	}
	return signer, account, nil
}

// finish commits the result of an initialization unless a disconnect superseded it.
func (m *Manager) finish(gen uint64, next Identity, cause error) error {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return model.NewKindError(model.ErrorKindCancelled, errors.New("disconnected during initialization"))
	}
	if cause != nil {
		next.Readiness = model.ReadinessErrored
		next.LastError = model.KindOf(cause)
		m.lastErr = cause
	}
	m.identity = next
	snapshot := m.identity
	m.mu.Unlock()

	if cause != nil {
		m.logger.Warn("account initialization failed",
			zap.String("kind", string(snapshot.LastError)),
			zap.String("signer", snapshot.Signer.Hex()),
			zap.Error(cause),
		)
	} else {
		m.logger.Info("account ready",
			zap.String("signer", snapshot.Signer.Hex()),
			zap.String("account", snapshot.Account.Hex()),
		)
	}
	m.notify(snapshot)
	return nil
}

// Fail moves a Ready or Initializing manager to Errored.
func (m *Manager) Fail(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	if m.identity.Readiness != model.ReadinessReady && m.identity.Readiness != model.ReadinessInitializing {
		m.mu.Unlock()
		return
	}
	m.generation++
	m.identity.Readiness = model.ReadinessErrored
	m.identity.LastError = model.KindOf(err)
	m.lastErr = err
	snapshot := m.identity
	m.mu.Unlock()

	m.logger.Warn("account fault", zap.String("kind", string(snapshot.LastError)), zap.Error(err))
	m.notify(snapshot)
}

// Disconnect resets the identity to Uninitialized.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.identity.Readiness == model.ReadinessUninitialized {
		m.mu.Unlock()
		return
	}
	m.generation++
	m.identity = Identity{Readiness: model.ReadinessUninitialized}
	m.lastErr = nil
	snapshot := m.identity
	m.mu.Unlock()

	m.logger.Info("account disconnected")
	m.notify(snapshot)
}

// IsReady reports whether the manager is Ready.
func (m *Manager) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity.Readiness == model.ReadinessReady
}

// Address returns the account address when Ready.
func (m *Manager) Address() (common.Address, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.identity.Readiness != model.ReadinessReady {
		return common.Address{}, false
	}
	return m.identity.Account, true
}

// Identity returns a snapshot of the current identity.
func (m *Manager) Identity() Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

// LastError returns the error that moved the manager to Errored, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *Manager) notify(identity Identity) {
	m.mu.RLock()
	observers := make([]func(Identity), len(m.observers))
	copy(observers, m.observers)
	m.mu.RUnlock()
	for _, fn := range observers {
		fn(identity)
	}
}

// classify keeps an existing kind on err, or tags it with fallback.
func classify(err error, fallback model.ErrorKind, action string) error {
	var kinded model.KindedError
	if errors.As(err, &kinded) {
		return fmt.Errorf("%s: %w", action, err)
	}
	return model.NewKindError(fallback, fmt.Errorf("%s: %w", action, err))
}
