package authcore

import (
	"errors"
	"runtime"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"

	"github.com/callvault/authcore/email"
	"github.com/callvault/authcore/internal/audit"
	"github.com/callvault/authcore/internal/rate"
	"github.com/callvault/authcore/internal/stores"
	"github.com/callvault/authcore/jwt"
	"github.com/callvault/authcore/password"
)

// Builder assembles an Engine. Configure, pick a storage backend, then call
// Build exactly once.
type Builder struct {
	config Config

	redis         redis.UniversalClient
	identityStore IdentityStore
	attemptStore  AttemptStore
	useMemory     bool

	emailSender email.Sender
	auditSink   AuditSink

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs both the identity store and the attempt-window store with
// the given Redis client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMemoryStore backs the engine with in-process stores. For tests and
// single-instance embedding; nothing survives a restart.
func (b *Builder) WithMemoryStore() *Builder {
	b.useMemory = true
	return b
}

// WithStores injects custom backends. Either may be nil to keep the backend
// chosen through WithRedis or WithMemoryStore.
func (b *Builder) WithStores(identities IdentityStore, attempts AttemptStore) *Builder {
	if identities != nil {
		b.identityStore = identities
	}
	if attempts != nil {
		b.attemptStore = attempts
	}
	return b
}

// WithEmailSender sets the delivery collaborator. Without one, email side
// effects are silently discarded.
func (b *Builder) WithEmailSender(sender email.Sender) *Builder {
	b.emailSender = sender
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the components, and returns a
// ready Engine. The Builder cannot be reused afterwards.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	identities := b.identityStore
	attempts := b.attemptStore
	switch {
	case identities != nil && attempts != nil:
	case b.useMemory:
		if identities == nil {
			identities = stores.NewMemoryIdentityStore()
		}
		if attempts == nil {
			attempts = stores.NewMemoryAttemptStore()
		}
	case b.redis != nil:
		if identities == nil {
			identities = stores.NewRedisIdentityStore(b.redis, cfg.Store.KeyPrefix)
		}
		if attempts == nil {
			attempts = stores.NewRedisAttemptStore(b.redis, cfg.Store.KeyPrefix)
		}
	default:
		return nil, errors.New("storage backend required: WithRedis, WithMemoryStore, or WithStores")
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	codec, err := jwt.NewManager(jwt.Config{
		Secret:     cloneBytes(cfg.Token.Secret),
		Issuer:     cfg.Token.Issuer,
		SessionTTL: cfg.Token.SessionTTL,
		Leeway:     cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	maxHashes := cfg.Password.MaxConcurrentHashes
	if maxHashes <= 0 {
		maxHashes = 2 * runtime.GOMAXPROCS(0)
	}

	engine := &Engine{
		config:     cfg,
		identities: identities,
		hasher:     hasher,
		hashSem:    semaphore.NewWeighted(int64(maxHashes)),
		codec:      codec,
		audit:      audit.NewDispatcher(audit.Config(cfg.Audit), b.auditSink),
		metrics:    NewMetrics(cfg.Metrics),
	}

	sender := b.emailSender
	if sender == nil {
		sender = email.NoOpSender{}
	}
	engine.mailer = email.NewDispatcher(email.DispatcherConfig{
		QueueSize:    cfg.Email.QueueSize,
		MaxRetries:   cfg.Email.MaxRetries,
		RetryBackoff: cfg.Email.RetryBackoff,
	}, sender)
	engine.mailer.OnError = engine.onEmailGiveUp

	engine.limiter = rate.New(attempts, rate.Config{
		MaxAttempts:   cfg.RateLimit.MaxAttempts,
		Window:        cfg.RateLimit.Window,
		BlockDuration: cfg.RateLimit.BlockDuration,
	})
	engine.limiter.OnFailOpen = engine.onLimiterFailOpen

	b.built = true
	return engine, nil
}
