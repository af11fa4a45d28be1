// Command authcore-loadtest measures engine throughput and latency under
// concurrency. It seeds a set of accounts, then runs a login phase and a
// session-validation phase against Redis (or miniredis when none is given)
// and prints per-phase percentiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authcore "github.com/callvault/authcore"
)

const seedPassword = "Load-Test-Pa55!"

func main() {
	var (
		accounts    = flag.Int("accounts", 1000, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (login + validate)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	capture := &captureSender{tokens: make(chan string, *accounts)}
	engine, err := buildEngine(client, capture)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	emails, tokens, err := seedAccounts(ctx, engine, capture, *accounts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loginStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		email := emails[r.Intn(len(emails))]
		_, err := engine.Login(ctx, authcore.LoginRequest{Email: email, Password: seedPassword})
		return err
	})
	validateStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		token := tokens[r.Intn(len(tokens))]
		_, err := engine.ValidateSession(ctx, token)
		return err
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("validate", validateStats)
}

// captureSender intercepts outbound verification tokens so the seeded
// accounts can be verified without a mailbox. Welcome and reset mail is
// discarded.
type captureSender struct {
	tokens chan string
}

func (c *captureSender) SendVerificationEmail(_ context.Context, _ string, token string, _ time.Duration) error {
	c.tokens <- token
	return nil
}

func (c *captureSender) SendPasswordResetEmail(context.Context, string, string, time.Duration) error {
	return nil
}

func (c *captureSender) SendWelcomeEmail(context.Context, string, string) error {
	return nil
}

// buildEngine uses deliberately weak hashing parameters. The run measures
// store and limiter behavior under load, not argon2 throughput.
func buildEngine(client redis.UniversalClient, capture *captureSender) (*authcore.Engine, error) {
	cfg := authcore.DefaultConfig()
	cfg.Token.Secret = []byte("loadtest-secret-0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.RateLimit.MaxAttempts = 1 << 30
	cfg.Audit.Enabled = false

	return authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithEmailSender(capture).
		Build()
}

func seedAccounts(ctx context.Context, engine *authcore.Engine, capture *captureSender, n int) (emails, tokens []string, err error) {
	emails = make([]string, 0, n)
	tokens = make([]string, 0, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("load-%d@example.com", i)
		result, err := engine.Signup(ctx, authcore.SignupRequest{
			Email:    email,
			Password: seedPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("signup %s: %w", email, err)
		}
		emails = append(emails, email)
		tokens = append(tokens, result.SessionToken)
	}

	// Mail delivery is asynchronous; consume one verification token per
	// account as they arrive.
	for i := 0; i < n; i++ {
		select {
		case token := <-capture.tokens:
			if _, err := engine.VerifyEmail(ctx, token); err != nil {
				return nil, nil, fmt.Errorf("verify: %w", err)
			}
		case <-time.After(10 * time.Second):
			return nil, nil, fmt.Errorf("timed out waiting for verification token %d of %d", i+1, n)
		}
	}
	return emails, tokens, nil
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
