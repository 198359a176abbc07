// Command goguard-loadtest measures engine throughput against Redis and the
// in-memory store: token authentication, request inspection and full
// password logins.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/internal/memstore"
)

const seedPassword = "L0ad-test!pass"

func main() {
	var (
		accounts    = flag.Int("accounts", 1000, "number of administrator accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations for the authenticate and inspect phases")
		loginOps    = flag.Int("login-ops", 2000, "operations for the login phase")
		bcryptCost  = flag.Int("bcrypt-cost", 4, "bcrypt cost for seeded passwords")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 || *loginOps < 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency and ops must be > 0")
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
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := goGuard.DefaultConfig()
	cfg.Password.BcryptCost = *bcryptCost
	cfg.Lockout.Threshold = 1 << 20
	engine, err := goGuard.New().
		WithConfig(cfg).
		WithRedis(client).
		WithStore(memstore.New()).
		WithLogger(zerolog.Nop()).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	usernames := make([]string, *accounts)
	tokens := make([]string, *accounts)
	for i := range usernames {
		usernames[i] = fmt.Sprintf("admin-%d", i)
		if _, err := engine.CreateAccount(ctx, goGuard.CreateAccountRequest{Username: usernames[i], Password: seedPassword}); err != nil {
			fmt.Fprintf(os.Stderr, "create account: %v\n", err)
			os.Exit(1)
		}
		res, err := engine.Login(ctx, goGuard.LoginRequest{Username: usernames[i], Password: seedPassword, IP: seedIP(i)})
		if err != nil || res.Code != goGuard.LoginOK {
			fmt.Fprintf(os.Stderr, "seed login %s: %v %+v\n", usernames[i], err, res)
			os.Exit(1)
		}
		tokens[i] = res.Token
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand, _ int) error {
		out, err := engine.Authenticate(ctx, tokens[r.Intn(len(tokens))])
		if err != nil {
			return err
		}
		if out.Kind != goGuard.Authenticated {
			return fmt.Errorf("token rejected: %s", out.Reason)
		}
		return nil
	})

	inspectStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand, i int) error {
		req := httptest.NewRequest("GET", fmt.Sprintf("/admin/incidents?page=%d&search=login", r.Intn(50)+1), nil)
		if found := engine.InspectRequest(ctx, req, seedIP(i)); len(found) > 0 {
			return fmt.Errorf("clean request flagged: %s", found[0].Description)
		}
		return nil
	})

	var loginStats phaseStats
	if *loginOps > 0 {
		loginStats = runPhase(*loginOps, *concurrency, 104729, func(r *rand.Rand, _ int) error {
			idx := r.Intn(len(usernames))
			res, err := engine.Login(ctx, goGuard.LoginRequest{Username: usernames[idx], Password: seedPassword, IP: seedIP(idx)})
			if err != nil {
				return err
			}
			if res.Code != goGuard.LoginOK {
				return fmt.Errorf("login %s: %s", usernames[idx], res.Message)
			}
			return nil
		})
	}

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("inspect", inspectStats)
	if *loginOps > 0 {
		printStats("login", loginStats)
	}
	snap := engine.MetricsSnapshot()
	fmt.Printf("counters: %d tracked, audit dropped=%d\n", len(snap.Counters), engine.AuditDropped())
}

// runPhase spreads ops calls of op over concurrency workers and collects
// per-call latencies. Workers draw from independent seeded sources.
func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		firstErr  atomic.Value
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					firstErr.CompareAndSwap(nil, err.Error())
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	stats := computeStats(time.Since(start), latencies, failures)
	if msg, ok := firstErr.Load().(string); ok {
		stats.firstErr = msg
	}
	return stats
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	firstErr string
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
	switch {
	case len(samples) == 0:
		return 0
	case p <= 0:
		return samples[0]
	case p >= 100:
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
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
	if s.firstErr != "" {
		fmt.Printf("  first failure: %s\n", s.firstErr)
	}
}

// seedIP spreads synthetic clients over 10.0.0.0/16.
func seedIP(i int) string {
	return fmt.Sprintf("10.0.%d.%d", (i/254)%256, i%254+1)
}
