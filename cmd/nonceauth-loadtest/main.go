package main

import (
	"context"
	"errors"
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

	"github.com/nigussolomon/nonceauth"
	"github.com/nigussolomon/nonceauth/store/redisstore"
)

type userState struct {
	id      string
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 2000, "number of users to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (validate + refresh)")
		racers      = flag.Int("racers", 8, "concurrent refresh calls per token in the race phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "loadtest", "redis key prefix")
		bcryptCost  = flag.Int("bcrypt-cost", 4, "bcrypt cost for seeded passkeys")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 1 {
		fmt.Fprintln(os.Stderr, "users, concurrency and ops must be > 0; racers must be > 1")
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
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := nonceauth.DefaultConfig()
	cfg.JWT.AccessSecret = "loadtest-access-secret"
	cfg.JWT.RefreshSecret = "loadtest-refresh-secret"
	cfg.Password.Algorithm = nonceauth.AlgorithmBcrypt
	cfg.Password.BcryptCost = *bcryptCost
	cfg.Password.NonceAlgorithm = nonceauth.AlgorithmSHA256

	engine, err := nonceauth.New().
		WithConfig(cfg).
		WithStore(redisstore.New(client, *prefix, cfg.Fields)).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]userState, *users)
	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	for i := range states {
		identifier := fmt.Sprintf("user-%d@loadtest", i)
		user, err := engine.Register(ctx, nonceauth.RegisterRequest{Identifier: identifier, Passkey: "loadtest"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
			os.Exit(1)
		}
		tokens, err := engine.Login(ctx, nonceauth.Credentials{Identifier: identifier, Passkey: "loadtest"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		states[i].id = user.ID
		states[i].access = tokens.AccessToken
		states[i].refresh = tokens.RefreshToken
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)
	race := runRacePhase(ctx, engine, states, *racers)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
	fmt.Printf("race: tokens=%d racers=%d single-winner=%d multi-winner=%d no-winner=%d\n",
		race.tokens, *racers, race.singleWinner, race.multiWinner, race.noWinner)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine: refresh_success=%d refresh_failure=%d race_lost=%d reuse=%d\n",
		snap.Counters[nonceauth.MetricRefreshSuccess],
		snap.Counters[nonceauth.MetricRefreshFailure],
		snap.Counters[nonceauth.MetricRefreshRaceLost],
		snap.Counters[nonceauth.MetricRefreshReuseDetected],
	)

	if race.multiWinner > 0 {
		os.Exit(1)
	}
}

func runValidatePhase(ctx context.Context, engine *nonceauth.Engine, states []userState, ops, concurrency int) phaseStats {
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
				token := states[r.Intn(len(states))].access
				t0 := time.Now()
				_, err := engine.ValidateAccess(ctx, token)
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

func runRefreshPhase(ctx context.Context, engine *nonceauth.Engine, states []userState, ops, concurrency int) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				t0 := time.Now()
				tokens, err := engine.Refresh(ctx, state.refresh)
				d := time.Since(t0)
				if err == nil {
					state.access = tokens.AccessToken
					state.refresh = tokens.RefreshToken
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type raceStats struct {
	tokens       int
	singleWinner int
	multiWinner  int
	noWinner     int
}

// runRacePhase presents each user's current refresh token from several
// goroutines at once. Rotation must let exactly one of them through.
func runRacePhase(ctx context.Context, engine *nonceauth.Engine, states []userState, racers int) raceStats {
	var out raceStats
	for i := range states {
		state := &states[i]

		var (
			wg      sync.WaitGroup
			winners int64
			gate    = make(chan struct{})
			winner  *nonceauth.AuthTokens
			mu      sync.Mutex
		)
		for r := 0; r < racers; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				tokens, err := engine.Refresh(ctx, state.refresh)
				if err == nil {
					atomic.AddInt64(&winners, 1)
					mu.Lock()
					winner = tokens
					mu.Unlock()
					return
				}
				if !errors.Is(err, nonceauth.ErrUnauthorized) {
					fmt.Fprintf(os.Stderr, "unexpected refresh error: %v\n", err)
				}
			}()
		}
		close(gate)
		wg.Wait()

		out.tokens++
		switch {
		case winners == 1:
			out.singleWinner++
		case winners > 1:
			out.multiWinner++
		default:
			out.noWinner++
		}
		if winner != nil {
			state.access = winner.AccessToken
			state.refresh = winner.RefreshToken
		}
	}
	return out
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
